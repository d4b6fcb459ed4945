package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/ai/vector"
)

// Upsert inserts or replaces a single document.
func (d *DB) Upsert(ctx context.Context, entry vector.Entry) error {
	return d.UpsertBatch(ctx, []vector.Entry{entry})
}

// UpsertBatch inserts or replaces documents one statement at a time inside a
// transaction. Retrying after a failure is safe, rows are keyed by id.
func (d *DB) UpsertBatch(ctx context.Context, entries []vector.Entry) error {
	if !d.connected {
		return vector.ErrNotConnected
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `
		INSERT INTO knowledge_document (id, embedding, content, metadata, created_ts)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata
	`

	now := time.Now().Unix()
	for _, entry := range entries {
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal metadata for %s", entry.ID)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			entry.ID,
			pgvector.NewVector(entry.Vector),
			entry.Text,
			metadata,
			now,
		); err != nil {
			return errors.Wrapf(err, "failed to upsert document %s", entry.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit upsert")
}

// Query returns the topK nearest documents by cosine similarity, most similar
// first. filter constrains rows by JSONB containment on metadata.
func (d *DB) Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	if !d.connected {
		return nil, nil
	}

	args := []any{pgvector.NewVector(vec)}
	query := `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM knowledge_document
	`
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal metadata filter")
		}
		query += ` WHERE metadata @> ` + placeholder(len(args)+1)
		args = append(args, filterJSON)
	}
	query += ` ORDER BY embedding <=> $1 LIMIT ` + placeholder(len(args)+1)
	args = append(args, topK)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query knowledge documents")
	}
	defer rows.Close()

	results := []vector.Result{}
	for rows.Next() {
		var result vector.Result
		var metadataJSON []byte
		if err := rows.Scan(&result.ID, &result.Text, &metadataJSON, &result.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan knowledge document")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &result.Metadata); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal metadata for %s", result.ID)
			}
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Delete removes a document by id.
func (d *DB) Delete(ctx context.Context, id string) error {
	if !d.connected {
		return vector.ErrNotConnected
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM knowledge_document WHERE id = `+placeholder(1), id); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", id)
	}
	return nil
}

// DeleteAll clears the index.
func (d *DB) DeleteAll(ctx context.Context) error {
	if !d.connected {
		return vector.ErrNotConnected
	}
	if _, err := d.db.ExecContext(ctx, `TRUNCATE knowledge_document`); err != nil {
		return errors.Wrap(err, "failed to clear knowledge documents")
	}
	return nil
}

// Stats reports the document count and configured dimension.
func (d *DB) Stats(ctx context.Context) (*vector.Stats, error) {
	if !d.connected {
		return nil, vector.ErrNotConnected
	}
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_document`).Scan(&count); err != nil {
		return nil, errors.Wrap(err, "failed to count knowledge documents")
	}
	return &vector.Stats{
		Count:     count,
		Dimension: d.dimension,
	}, nil
}
