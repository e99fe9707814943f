package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgErrorClassification(t *testing.T) {
	fk := fmt.Errorf("insert signature: %w", &pgconn.PgError{Code: "23503"})
	uniq := fmt.Errorf("insert signature: %w", &pgconn.PgError{Code: "23505"})
	if !IsForeignKeyViolation(fk) || IsUniqueViolation(fk) {
		t.Fatalf("expected foreign key violation only")
	}
	if !IsUniqueViolation(uniq) || IsForeignKeyViolation(uniq) {
		t.Fatalf("expected unique violation only")
	}
	if IsForeignKeyViolation(errors.New("boom")) {
		t.Fatalf("plain errors are not pg errors")
	}
}
