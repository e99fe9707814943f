package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type ContractStatus string

const (
	ContractDraft    ContractStatus = "draft"
	ContractSent     ContractStatus = "sent"
	ContractSigned   ContractStatus = "signed"
	ContractExpired  ContractStatus = "expired"
	ContractArchived ContractStatus = "archived"
)

type Contract struct {
	ID         int64          `json:"id"`
	TemplateID string         `json:"template_id"`
	ProjectID  string         `json:"project_id"`
	Status     ContractStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type NewContract struct {
	TemplateID string
	ProjectID  string
}

func (s *Store) CreateContract(ctx context.Context, in NewContract) (Contract, error) {
	var c Contract
	err := s.DB.QueryRow(ctx, `
INSERT INTO contracts(template_id,project_id,status)
VALUES($1,$2,'draft')
RETURNING id,template_id,project_id,status,created_at,updated_at
`, in.TemplateID, in.ProjectID).Scan(&c.ID, &c.TemplateID, &c.ProjectID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Contract{}, fmt.Errorf("insert contract: %w", err)
	}
	return c, nil
}

func (s *Store) GetContract(ctx context.Context, id int64) (Contract, error) {
	var c Contract
	err := s.DB.QueryRow(ctx, `
SELECT id,template_id,project_id,status,created_at,updated_at
FROM contracts
WHERE id=$1
`, id).Scan(&c.ID, &c.TemplateID, &c.ProjectID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrContractNotFound
		}
		return Contract{}, fmt.Errorf("select contract %d: %w", id, err)
	}
	return c, nil
}
