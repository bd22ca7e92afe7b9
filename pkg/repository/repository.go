// Package repository persists templates and invitations in Postgres.
package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Common errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateSlug      = errors.New("a template with this slug already exists")
	ErrDuplicateShareCode = errors.New("share code already in use")
)

const uniqueViolation = "23505"

// Constraint names from migrations/sql
const (
	templateSlugConstraint   = "templates_slug_key"
	invitationCodeConstraint = "invitations_share_code_key"
)

// mapError converts driver errors to the package sentinels and wraps the rest
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		switch pqErr.Constraint {
		case templateSlugConstraint:
			return ErrDuplicateSlug
		case invitationCodeConstraint:
			return ErrDuplicateShareCode
		}
	}
	return errors.Wrap(err, msg)
}

// observer records timing and outcome of each query
type observer struct {
	metrics observability.MetricsClient
}

// track starts timing op; the returned func reads *err when deferred
func (o observer) track(op string, err *error) func() {
	start := time.Now()
	return func() {
		success := *err == nil || errors.Is(*err, ErrNotFound)
		o.metrics.RecordDatabaseOperation(op, success, time.Since(start).Seconds())
	}
}
