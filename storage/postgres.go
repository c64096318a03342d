package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"f2_scrooper/models"
)

// PostgresMirror keeps the latest document per kind in a scrape_documents table.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

type StoredDocument struct {
	Kind        models.DataKind
	Fingerprint string
	Body        json.RawMessage
	UpdatedAt   time.Time
}

func NewPostgresMirror(ctx context.Context, connString string) (*PostgresMirror, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	m := &PostgresMirror{pool: pool}
	if err := m.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

func (m *PostgresMirror) Close() {
	m.pool.Close()
}

func (m *PostgresMirror) migrate(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scrape_documents (
			kind TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (m *PostgresMirror) Name() string {
	return "postgres"
}

// Publish upserts the document. A row whose fingerprint already matches is
// left untouched so updated_at tracks real changes.
func (m *PostgresMirror) Publish(ctx context.Context, kind models.DataKind, body []byte, fingerprint string) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO scrape_documents (kind, fingerprint, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			body = EXCLUDED.body,
			updated_at = NOW()
		WHERE scrape_documents.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint`,
		string(kind), fingerprint, string(body))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", kind, err)
	}
	return nil
}

// Get returns the stored document for kind, or nil when none was published.
func (m *PostgresMirror) Get(ctx context.Context, kind models.DataKind) (*StoredDocument, error) {
	var doc StoredDocument
	var body []byte
	err := m.pool.QueryRow(ctx, `
		SELECT kind, fingerprint, body, updated_at FROM scrape_documents WHERE kind = $1`,
		string(kind)).Scan(&doc.Kind, &doc.Fingerprint, &body, &doc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", kind, err)
	}
	doc.Body = body
	return &doc, nil
}
