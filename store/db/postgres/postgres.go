// Package postgres implements the vector store gateway on PostgreSQL with the
// pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

type DB struct {
	db        *sql.DB
	dimension int
	connected bool
}

// NewDB opens a connection with the given DSN and runs migrations. The
// pgvector extension must be installable by the connecting role.
func NewDB(ctx context.Context, dsn string, dimension int) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	if err := pgDB.PingContext(ctx); err != nil {
		_ = pgDB.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	d := &DB{db: pgDB, dimension: dimension}
	if err := d.migrate(ctx); err != nil {
		_ = pgDB.Close()
		return nil, err
	}
	d.connected = true
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS knowledge_document (
				id TEXT PRIMARY KEY,
				embedding vector(%d) NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				created_ts BIGINT NOT NULL
			)`, d.dimension),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_document_embedding
			ON knowledge_document USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate knowledge_document")
		}
	}
	return nil
}

func (d *DB) Connected() bool {
	return d.connected
}

func (d *DB) Close() error {
	d.connected = false
	return d.db.Close()
}

// placeholder returns a positional parameter like $1.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
