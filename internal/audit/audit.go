// Package audit persists administrative and flow events to a SQLite
// database through a non-blocking buffered channel, so the tick thread
// publishing an event never waits on disk I/O (§5, §6).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"voudp/internal/voiceserver"
)

// eventBuf bounds how many audit events may be queued before the sink
// starts dropping the newest ones rather than blocking a caller.
const eventBuf = 512

// Sink writes audit events to a SQLite database on a dedicated goroutine.
type Sink struct {
	db     *sql.DB
	events chan event
	done   chan struct{}
}

type event struct {
	kind, actor, detail string
	at                  time.Time
}

// Open creates (or reuses) a SQLite database at path and starts the sink's
// writer goroutine. Close must be called to flush and release the
// database handle.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite database: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL,
	detail TEXT NOT NULL,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_at ON audit_events(at);
`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: run migrations: %w", err)
	}

	s := &Sink{
		db:     db,
		events: make(chan event, eventBuf),
		done:   make(chan struct{}),
	}
	go s.run()
	slog.Info("audit sink opened", "path", path)
	return s, nil
}

// Record implements voiceserver.AuditFunc. It never blocks: if the
// channel is full the event is dropped and logged, since a lost audit
// record is preferable to stalling the caller.
func (s *Sink) Record(kind, actor, detail string) {
	select {
	case s.events <- event{kind: kind, actor: actor, detail: detail, at: time.Now()}:
	default:
		slog.Warn("audit event dropped, sink backlog full", "kind", kind, "actor", actor)
	}
}

// AuditFunc adapts Record to voiceserver.AuditFunc's signature.
func (s *Sink) AuditFunc() voiceserver.AuditFunc {
	return s.Record
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.events {
		id, err := uuid.NewRandom()
		if err != nil {
			slog.Error("audit: generate id", "err", err)
			continue
		}
		const q = `INSERT INTO audit_events (id, kind, actor, detail, at) VALUES (?, ?, ?, ?, ?)`
		if _, err := s.db.Exec(q, id.String(), ev.kind, ev.actor, ev.detail, ev.at.UnixMilli()); err != nil {
			slog.Error("audit: insert event", "kind", ev.kind, "err", err)
		}
	}
}

// Close stops accepting new events, waits for the writer goroutine to
// drain, and closes the database handle.
func (s *Sink) Close() error {
	close(s.events)
	<-s.done
	return s.db.Close()
}

// Event is a persisted audit record, returned by Recent for the admin
// surface.
type Event struct {
	ID     string
	Kind   string
	Actor  string
	Detail string
	At     time.Time
}

// Recent returns the most recent audit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, kind, actor, detail, at FROM audit_events ORDER BY at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var atMs int64
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Actor, &ev.Detail, &atMs); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		ev.At = time.UnixMilli(atMs).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
