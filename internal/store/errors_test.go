package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyMapsNoRowsToNotFound(t *testing.T) {
	err := classify("get contact", sql.ErrNoRows)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if IsUniqueViolation(err) {
		t.Fatalf("no rows must not be a unique violation")
	}
}

func TestClassifyDetectsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := classify("repoint contact_user_settings", pgErr)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	var unwrapped *pgconn.PgError
	if !errors.As(err, &unwrapped) || unwrapped.Code != "23505" {
		t.Fatalf("expected original pg error in chain, got %v", err)
	}
}

func TestClassifyKeepsOtherErrors(t *testing.T) {
	base := errors.New("connection reset")
	err := classify("delete contact", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if IsNotFound(err) || IsUniqueViolation(err) {
		t.Fatalf("unexpected classification for %v", err)
	}
	if classify("noop", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestIdentQuotesRelationNames(t *testing.T) {
	if got := ident("contact_notes"); got != `"contact_notes"` {
		t.Fatalf("unexpected identifier %s", got)
	}
	if got := ident(`bad"name`); got != `"bad""name"` {
		t.Fatalf("unexpected identifier %s", got)
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	row := Row{"id": "r1", "note": "a"}
	clone := row.Clone()
	clone["note"] = "b"
	if row["note"] != "a" {
		t.Fatalf("clone mutated source row")
	}
	if clone.ID() != "r1" {
		t.Fatalf("unexpected id %q", clone.ID())
	}
}
