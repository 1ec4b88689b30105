package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PostgresSink persists entries as immutable log_entries rows. The
// application never updates or deletes them; retention is an external
// concern.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates the database-backed sink.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "db" }

func (s *PostgresSink) Emit(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries (
			id, timestamp, service_name, client_id, ip_address,
			actor_user_id, actor_role, target_user_id, target_profile_id,
			target_type, operation
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			uuid.New(),
			e.Timestamp,
			nullIfEmpty(e.ServiceName),
			nullIfEmpty(e.ClientID),
			nullIfEmpty(e.IPAddress),
			nullableUUID(uuid.UUID(e.ActorUserID)),
			string(e.ActorRole),
			nullableUUID(uuid.UUID(e.TargetUserID)),
			uuid.UUID(e.TargetProfileID),
			e.TargetType,
			string(e.Operation),
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit entries: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

// MemorySink collects entries in memory for tests and local development.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Emit(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// Entries returns a copy of everything emitted so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
