package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const sqliteBusyTimeoutMillis = 5000

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		position   INTEGER NOT NULL,
		id         TEXT    NOT NULL PRIMARY KEY,
		text       TEXT    NOT NULL,
		created_at TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_position ON memories(position)`,
}

// SQLiteBackend keeps facts in an embedded SQLite database. Insertion order
// is preserved through the position column.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLiteBackend opens (creating when needed) the database at path with
// WAL journaling, a busy timeout and a single connection.
func OpenSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeoutMillis)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Path() string {
	return b.path
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]memoryModel.Fact, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, text, created_at FROM memories ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load memories: %w", err)
	}
	defer rows.Close()

	var facts []memoryModel.Fact
	for rows.Next() {
		var f memoryModel.Fact
		if err := rows.Scan(&f.ID, &f.Text, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate memories: %w", err)
	}
	return facts, nil
}

// Save replaces the stored set inside one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, facts []memoryModel.Fact) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("sqlite: clear memories: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memories (position, id, text, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range facts {
		if _, err := stmt.ExecContext(ctx, i, f.ID, f.Text, f.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: insert memory %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
