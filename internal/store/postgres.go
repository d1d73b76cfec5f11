package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps the datasets in a single Postgres table, one JSONB row per
// dataset. Used instead of FileStore when DATABASE_URL is configured.
type PgStore struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
}

func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PgStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *PgStore) runMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

func (s *PgStore) Load(ctx context.Context, name string, v interface{}) error {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM datasets WHERE name = $1", name,
	).Scan(&data)
	if err != nil {
		// No row yet: keep the caller's default.
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("store: dataset %s is corrupt, starting with empty value: %v", name, err)
		return nil
	}
	return nil
}

func (s *PgStore) Save(ctx context.Context, name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO datasets (name, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET value = $2, updated_at = CURRENT_TIMESTAMP
	`, name, data)
	return err
}

func (s *PgStore) Close() {
	s.pool.Close()
}
