package db

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"
)

// SQLiteBackend stores documents as rows of the documents table and journal
// lines as rows of the journal table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps a database opened by Init.
func NewSQLiteBackend(database *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: database}
}

// Read returns the document body for key, or the joined journal lines when
// key is an append-only key.
func (b *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = b.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if err == nil {
		return body, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return b.readJournal(ctx, key)
}

func (b *SQLiteBackend) readJournal(ctx context.Context, key string) ([]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT line FROM journal WHERE key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", key, err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	found := false
	for rows.Next() {
		var line []byte
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan journal %s: %w", key, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", key, err)
	}
	if !found {
		return nil, notExist(key)
	}
	return buf.Bytes(), nil
}

// Write upserts the document at key.
func (b *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`
	if _, err := b.db.ExecContext(ctx, query, key, data, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Append inserts one journal line for key.
func (b *SQLiteBackend) Append(ctx context.Context, key string, line []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	query := `INSERT INTO journal (key, line, created_at) VALUES (?, ?, ?)`
	if _, err := b.db.ExecContext(ctx, query, key, line, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
