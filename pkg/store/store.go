// Package store manages the SQLite event journal for smk.
//
// The journal is an append-only audit log of what the broker did: every
// admitted ORDER with its fused Lamport timestamp, and every START and DONE
// broadcast. It is never replayed into the queue; a restarted broker begins
// with an empty queue and a fresh clock.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/smartkitchen/smk/pkg/model"

	_ "modernc.org/sqlite"
)

const defaultLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT    NOT NULL,
	client_id  TEXT    NOT NULL DEFAULT '',
	dish       TEXT    NOT NULL DEFAULT '',
	sender_ts  INTEGER NOT NULL DEFAULT 0,
	lamport_ts INTEGER NOT NULL,
	note       TEXT    NOT NULL DEFAULT '',
	created_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_by_order  ON events(lamport_ts, client_id);
CREATE INDEX IF NOT EXISTS events_by_client ON events(client_id, lamport_ts);
CREATE INDEX IF NOT EXISTS events_by_kind   ON events(kind, lamport_ts);
`

const (
	insertEvent = `INSERT INTO events
	(kind, client_id, dish, sender_ts, lamport_ts, note, created_ns)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectEvent = `SELECT id, kind, client_id, dish, sender_ts, lamport_ts, note, created_ns
	FROM events`

	totalOrder = ` ORDER BY lamport_ts, client_id, id LIMIT ?`
)

// Store is the journal. It is safe for concurrent use; writes go through
// a single connection so appends from many broker goroutines serialize in
// the pool instead of contending on the file lock.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the journal at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSource(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func dataSource(path string) string {
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(10000)",
		"_pragma=synchronous(NORMAL)",
	}
	return path + "?" + strings.Join(pragmas, "&")
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Append journals e and fills in its ID. A zero CreatedAt is stamped with
// the current time.
func (s *Store) Append(e *model.Event) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := retryOp(defaultRetry, func() error {
		res, err := s.db.Exec(insertEvent,
			string(e.Kind), e.ClientID, e.Dish, e.SenderTS, e.LamportTS, e.Note,
			e.CreatedAt.UnixNano())
		if err != nil {
			return err
		}
		e.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append %s event: %w", e.Kind, err)
	}
	return e.ID, nil
}

// List returns events with lamport_ts >= sinceTS in total order: Lamport
// timestamp, then client id, then insertion.
func (s *Store) List(sinceTS int64, limit int) ([]model.Event, error) {
	return s.query(`lamport_ts >= ?`, limit, sinceTS)
}

// ListForClient is List restricted to one client.
func (s *Store) ListForClient(clientID string, sinceTS int64, limit int) ([]model.Event, error) {
	return s.query(`client_id = ? AND lamport_ts >= ?`, limit, clientID, sinceTS)
}

// ListByKind is List restricted to one event kind.
func (s *Store) ListByKind(kind model.Kind, sinceTS int64, limit int) ([]model.Event, error) {
	return s.query(`kind = ? AND lamport_ts >= ?`, limit, string(kind), sinceTS)
}

// ListForClientKind is List restricted to one client and one kind.
func (s *Store) ListForClientKind(clientID string, kind model.Kind, sinceTS int64, limit int) ([]model.Event, error) {
	return s.query(`client_id = ? AND kind = ? AND lamport_ts >= ?`, limit, clientID, string(kind), sinceTS)
}

func (s *Store) query(where string, limit int, args ...any) ([]model.Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.Query(selectEvent+" WHERE "+where+totalOrder, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			e    model.Event
			kind string
			ns   int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.ClientID, &e.Dish, &e.SenderTS, &e.LamportTS, &e.Note, &ns); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.Kind(kind)
		e.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of journaled events, or 0 on error.
func (s *Store) Count() int64 {
	return s.scalar(`SELECT COUNT(*) FROM events`)
}

// MaxLamport returns the highest journaled Lamport timestamp, or 0.
func (s *Store) MaxLamport() int64 {
	return s.scalar(`SELECT COALESCE(MAX(lamport_ts), 0) FROM events`)
}

func (s *Store) scalar(q string) int64 {
	var n int64
	if err := s.db.QueryRow(q).Scan(&n); err != nil {
		return 0
	}
	return n
}
