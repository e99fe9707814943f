package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrContractNotFound  = errors.New("contract not found")
	ErrSignatureNotFound = errors.New("signature not found")
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// Store is the only component that talks to Postgres. Every method borrows a
// connection from the shared pool for one statement or one transaction.
type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func IsForeignKeyViolation(err error) bool { return pgCode(err) == pgForeignKeyViolation }

func IsUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
