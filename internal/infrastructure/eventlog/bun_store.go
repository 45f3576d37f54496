// Package eventlog is the Postgres-backed Event Log: an append-only,
// per-execution-ordered fact store with UNIQUE(execution_id,
// sequence_number) as its idempotency key, over the same bun.DB +
// pgdialect + pgdriver stack the rest of this repo's storage uses.
// Append enforces the idempotent-append contract domain.EventLogStore
// documents rather than a bare "insert the rows."
package eventlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// eventModel is the row shape for the "events" table.
type eventModel struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ExecutionID     domain.ID        `bun:"execution_id,pk"`
	SequenceNumber  uint64           `bun:"sequence_number,pk"`
	EventType       domain.EventType `bun:"event_type"`
	Payload         []byte           `bun:"payload,type:jsonb"`
	IterationNumber *int             `bun:"iteration_number"`
	CreatedAt       time.Time        `bun:"created_at"`
}

// Store is the bun/Postgres-backed domain.EventLogStore implementation.
type Store struct {
	db *bun.DB
}

// New opens a Postgres connection via pgdriver and wraps it in a bun.DB.
func New(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the events table if missing, plus the
// UNIQUE(execution_id, sequence_number) constraint that makes concurrent
// appends to the same position idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*eventModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS events_execution_sequence_uniq
		ON events (execution_id, sequence_number)
	`)
	return err
}

// Append inserts entries, treating a conflict on (execution_id,
// sequence_number) as success only when the stored payload is
// byte-identical to the one being appended — the "idempotent re-append"
// contract domain.EventLogStore documents. A differing payload at an
// already-used sequence number is a genuine conflict and returns
// ErrCodeAlreadyExists.
func (s *Store) Append(ctx context.Context, entries ...domain.EventLogEntry) error {
	for _, entry := range entries {
		if err := s.appendOne(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendOne(ctx context.Context, entry domain.EventLogEntry) error {
	model := toModel(entry)
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}

	existing := new(eventModel)
	getErr := s.db.NewSelect().Model(existing).
		Where("execution_id = ?", entry.ExecutionID).
		Where("sequence_number = ?", entry.SequenceNumber).
		Scan(ctx)
	if getErr != nil {
		return getErr
	}
	if string(existing.Payload) == string(entry.Payload) {
		return nil
	}
	return domain.NewDomainError(domain.ErrCodeAlreadyExists,
		"an event with this (execution_id, sequence_number) already exists with a different payload", err)
}

func (s *Store) ListByExecution(ctx context.Context, executionID domain.ID) ([]domain.EventLogEntry, error) {
	var models []eventModel
	err := s.db.NewSelect().Model(&models).
		Where("execution_id = ?", executionID).
		Order("sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEntries(models), nil
}

func (s *Store) ListByType(ctx context.Context, executionID domain.ID, eventType domain.EventType) ([]domain.EventLogEntry, error) {
	var models []eventModel
	err := s.db.NewSelect().Model(&models).
		Where("execution_id = ?", executionID).
		Where("event_type = ?", eventType).
		Order("sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEntries(models), nil
}

func toModel(e domain.EventLogEntry) *eventModel {
	return &eventModel{
		ExecutionID:     e.ExecutionID,
		SequenceNumber:  e.SequenceNumber,
		EventType:       e.EventType,
		Payload:         e.Payload,
		IterationNumber: e.IterationNumber,
		CreatedAt:       e.CreatedAt,
	}
}

func toEntries(models []eventModel) []domain.EventLogEntry {
	out := make([]domain.EventLogEntry, len(models))
	for i, m := range models {
		out[i] = domain.EventLogEntry{
			ExecutionID:     m.ExecutionID,
			SequenceNumber:  m.SequenceNumber,
			EventType:       m.EventType,
			Payload:         m.Payload,
			IterationNumber: m.IterationNumber,
			CreatedAt:       m.CreatedAt,
		}
	}
	return out
}

// isUniqueViolation recognizes Postgres' unique_violation SQLSTATE (23505)
// the way pgdriver surfaces it, without importing a driver-specific error
// type — pgdriver wraps errors behind the stdlib database/sql interface,
// so matching on the message is the simplest reliable way to detect it.
// The distinction matters here because a real conflict is a correctness
// problem (ErrCodeAlreadyExists), not a no-op to swallow.
func isUniqueViolation(err error) bool {
	return err != nil && (contains(err.Error(), "23505") || contains(err.Error(), "duplicate key"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
