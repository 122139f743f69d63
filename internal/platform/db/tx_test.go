package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/medledger/internal/platform/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		code       string
		concurrent bool
	}{
		{"55P03", true},
		{"40001", true},
		{"40P01", true},
		{"23505", false},
		{"42P01", false},
	}
	for _, tt := range tests {
		err := MapError(fmt.Errorf("adjust: %w", &pgconn.PgError{Code: tt.code, Message: "x"}))
		if got := errors.Is(err, apperror.ErrConcurrentModification); got != tt.concurrent {
			t.Errorf("code %s: concurrent = %v, want %v", tt.code, got, tt.concurrent)
		}
	}
}

func TestMapError_PassThrough(t *testing.T) {
	orig := errors.New("plain")
	if MapError(orig) != orig {
		t.Error("expected non-postgres errors to pass through unchanged")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Error("expected plain error to not be a unique violation")
	}
}
