// Package sqlite implements courier.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/courier"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and row counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements courier.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ courier.Store = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: courier.NopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables and indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			birth_date TEXT NOT NULL DEFAULT '',
			birth_time TEXT NOT NULL DEFAULT '',
			birth_place TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memories_sender_idx ON memories(sender_key, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages(sender_key, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("sqlite: init failed", "error", err)
			return fmt.Errorf("init schema: %w", err)
		}
	}
	s.logger.Debug("sqlite: init ok", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Profiles ---

// GetProfile returns the profile for senderKey, or nil when none exists.
func (s *Store) GetProfile(ctx context.Context, senderKey string) (*courier.Profile, error) {
	start := time.Now()
	var p courier.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_key, name, birth_date, birth_time, birth_place, created_at, updated_at
		 FROM profiles WHERE sender_key = ?`, senderKey,
	).Scan(&p.ID, &p.SenderKey, &p.Name, &p.BirthDate, &p.BirthTime, &p.BirthPlace, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sqlite: get profile miss", "sender", senderKey, "duration", time.Since(start))
		return nil, nil
	}
	if err != nil {
		s.logger.Error("sqlite: get profile failed", "sender", senderKey, "error", err)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	s.logger.Debug("sqlite: get profile ok", "sender", senderKey, "duration", time.Since(start))
	return &p, nil
}

// UpsertProfile inserts p or replaces the row with the same sender key.
// The original id and created_at survive an update.
func (s *Store) UpsertProfile(ctx context.Context, p courier.Profile) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, sender_key, name, birth_date, birth_time, birth_place, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sender_key) DO UPDATE SET
		   name = excluded.name,
		   birth_date = excluded.birth_date,
		   birth_time = excluded.birth_time,
		   birth_place = excluded.birth_place,
		   updated_at = excluded.updated_at`,
		p.ID, p.SenderKey, p.Name, p.BirthDate, p.BirthTime, p.BirthPlace, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: upsert profile failed", "sender", p.SenderKey, "error", err)
		return fmt.Errorf("upsert profile: %w", err)
	}
	s.logger.Debug("sqlite: upsert profile ok", "sender", p.SenderKey, "duration", time.Since(start))
	return nil
}

// --- Memories ---

// AddMemory stores one fact.
func (s *Store) AddMemory(ctx context.Context, m courier.Memory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memories (id, sender_key, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.SenderKey, m.Content, m.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: add memory failed", "sender", m.SenderKey, "error", err)
		return fmt.Errorf("add memory: %w", err)
	}
	s.logger.Debug("sqlite: add memory ok", "sender", m.SenderKey, "id", m.ID)
	return nil
}

// ListMemories returns up to limit memories, newest first.
func (s *Store) ListMemories(ctx context.Context, senderKey string, limit int) ([]courier.Memory, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_key, content, created_at
		 FROM memories
		 WHERE sender_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		senderKey, limit,
	)
	if err != nil {
		s.logger.Error("sqlite: list memories failed", "sender", senderKey, "error", err)
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []courier.Memory
	for rows.Next() {
		var m courier.Memory
		if err := rows.Scan(&m.ID, &m.SenderKey, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	s.logger.Debug("sqlite: list memories ok", "sender", senderKey, "count", len(out), "duration", time.Since(start))
	return out, nil
}

// --- History ---

// AppendMessage stores one transcript entry.
func (s *Store) AppendMessage(ctx context.Context, m courier.Message) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, sender_key, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SenderKey, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: append message failed", "id", m.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("sqlite: append message ok", "id", m.ID, "role", m.Role, "duration", time.Since(start))
	return nil
}

// RecentMessages returns the most recent messages for a sender,
// ordered chronologically (oldest first).
func (s *Store) RecentMessages(ctx context.Context, senderKey string, limit int) ([]courier.Message, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_key, role, content, created_at
		 FROM messages
		 WHERE sender_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		senderKey, limit,
	)
	if err != nil {
		s.logger.Error("sqlite: recent messages failed", "sender", senderKey, "error", err)
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []courier.Message
	for rows.Next() {
		var m courier.Message
		if err := rows.Scan(&m.ID, &m.SenderKey, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order (oldest first).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	s.logger.Debug("sqlite: recent messages ok", "sender", senderKey, "count", len(messages), "duration", time.Since(start))
	return messages, nil
}
