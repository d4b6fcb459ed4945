// Package sqlite persists conversation history in a local SQLite database so
// it survives restarts. The in-memory manager stays authoritative; this
// driver only mirrors its writes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/sidekick/store"
)

type DB struct {
	db *sql.DB
}

// NewDB opens the conversation database at the given path and migrates it.
//
// Pragmas: WAL journal mode avoids writer lock contention and busy_timeout
// papers over short-lived locks. With the modernc.org/sqlite driver each
// pragma must be prefixed with `_pragma=`.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// A single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	d := &DB{db: sqliteDB}
	if err := d.migrate(ctx); err != nil {
		_ = sqliteDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sources TEXT NOT NULL DEFAULT '[]',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_message_conversation_id
			ON conversation_message (conversation_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate conversation tables")
		}
	}
	return nil
}

func (d *DB) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation (id, title, created_ts) VALUES (?, ?, ?)`,
		conv.ID(), conv.Title(), conv.CreatedAt().Unix(),
	)
	return errors.Wrapf(err, "failed to create conversation %s", conv.ID())
}

func (d *DB) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE conversation SET title = ? WHERE id = ?`, title, id,
	)
	return errors.Wrapf(err, "failed to update title of conversation %s", id)
}

func (d *DB) AddMessage(ctx context.Context, conversationID string, msg *store.Message) error {
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message sources")
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO conversation_message (conversation_id, role, content, sources, created_ts)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Content, sources, msg.Timestamp.UnixNano(),
	)
	return errors.Wrapf(err, "failed to add message to conversation %s", conversationID)
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, id)
	return errors.Wrapf(err, "failed to delete conversation %s", id)
}

func (d *DB) LoadConversations(ctx context.Context) ([]*store.Conversation, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, created_ts FROM conversation ORDER BY created_ts ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	type convRow struct {
		id        string
		title     string
		createdTs int64
	}
	var convRows []convRow
	for rows.Next() {
		var r convRow
		if err := rows.Scan(&r.id, &r.title, &r.createdTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		convRows = append(convRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := make([]*store.Conversation, 0, len(convRows))
	for _, r := range convRows {
		messages, err := d.loadMessages(ctx, r.id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations,
			store.RestoreConversation(r.id, r.title, time.Unix(r.createdTs, 0), messages))
	}
	return conversations, nil
}

func (d *DB) loadMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT role, content, sources, created_ts
		 FROM conversation_message
		 WHERE conversation_id = ?
		 ORDER BY created_ts ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages of conversation %s", conversationID)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var msg store.Message
		var role string
		var sourcesJSON []byte
		var createdTs int64
		if err := rows.Scan(&role, &msg.Content, &sourcesJSON, &createdTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		msg.Role = store.Role(role)
		msg.Timestamp = time.Unix(0, createdTs)
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &msg.Sources); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal message sources")
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
