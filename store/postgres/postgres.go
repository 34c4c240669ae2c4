// Package postgres implements courier.Store using PostgreSQL via pgx.
//
// New accepts an externally-owned *pgxpool.Pool; the caller creates and
// closes it. Open builds a pool from a DSN and closes it on Close.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/courier"
)

// Store implements courier.Store backed by PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
	logger   *slog.Logger
	maxConns int32
}

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxConns caps the pool size when the store builds its own pool.
func WithMaxConns(n int32) Option {
	return func(s *Store) { s.maxConns = n }
}

var _ courier.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: courier.NopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects to dsn and returns a Store that owns its pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := New(nil, opts...)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if s.maxConns > 0 {
		cfg.MaxConns = s.maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s.pool = pool
	s.ownsPool = true
	s.logger.Debug("postgres: pool opened", "max_conns", cfg.MaxConns)
	return s, nil
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			birth_date TEXT NOT NULL DEFAULT '',
			birth_time TEXT NOT NULL DEFAULT '',
			birth_place TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memories_sender_idx ON memories(sender_key, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages(sender_key, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// GetProfile returns the profile for senderKey, or nil when none exists.
func (s *Store) GetProfile(ctx context.Context, senderKey string) (*courier.Profile, error) {
	var p courier.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, sender_key, name, birth_date, birth_time, birth_place, created_at, updated_at
		 FROM profiles WHERE sender_key = $1`, senderKey,
	).Scan(&p.ID, &p.SenderKey, &p.Name, &p.BirthDate, &p.BirthTime, &p.BirthPlace, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile inserts p or updates the row with the same sender key.
func (s *Store) UpsertProfile(ctx context.Context, p courier.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, sender_key, name, birth_date, birth_time, birth_place, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (sender_key) DO UPDATE SET
		   name = EXCLUDED.name,
		   birth_date = EXCLUDED.birth_date,
		   birth_time = EXCLUDED.birth_time,
		   birth_place = EXCLUDED.birth_place,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.SenderKey, p.Name, p.BirthDate, p.BirthTime, p.BirthPlace, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert profile: %w", err)
	}
	return nil
}

// AddMemory stores one fact.
func (s *Store) AddMemory(ctx context.Context, m courier.Memory) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, sender_key, content, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`,
		m.ID, m.SenderKey, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: add memory: %w", err)
	}
	return nil
}

// ListMemories returns up to limit memories, newest first.
func (s *Store) ListMemories(ctx context.Context, senderKey string, limit int) ([]courier.Memory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_key, content, created_at FROM memories
		 WHERE sender_key = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		senderKey, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (courier.Memory, error) {
		var m courier.Memory
		err := row.Scan(&m.ID, &m.SenderKey, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan memories: %w", err)
	}
	return out, nil
}

// AppendMessage stores one transcript entry.
func (s *Store) AppendMessage(ctx context.Context, m courier.Message) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_key, role, content, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.SenderKey, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		s.logger.Error("postgres: append message failed", "id", m.ID, "error", err)
		return fmt.Errorf("postgres: append message: %w", err)
	}
	s.logger.Debug("postgres: append message ok", "id", m.ID, "duration", time.Since(start))
	return nil
}

// RecentMessages returns the most recent messages for a sender, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, senderKey string, limit int) ([]courier.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_key, role, content, created_at FROM (
		   SELECT id, sender_key, role, content, created_at FROM messages
		   WHERE sender_key = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		 ) recent ORDER BY created_at ASC, id ASC`,
		senderKey, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (courier.Message, error) {
		var m courier.Message
		err := row.Scan(&m.ID, &m.SenderKey, &m.Role, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan messages: %w", err)
	}
	return out, nil
}
