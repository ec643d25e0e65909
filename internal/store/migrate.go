package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Manager owns schema versioning. Versions are applied in order and recorded
// in schema_migrations so an existing database is upgraded in place.
type Manager struct{}

const latestVersion = 1

func (m Manager) ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);`)
	if err != nil {
		return err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		_, err = db.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES(0)`)
	}
	return err
}

func (m Manager) version(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	return v, err
}

func (m Manager) setVersion(ctx context.Context, db *sql.DB, v int) error {
	_, err := db.ExecContext(ctx, `UPDATE schema_migrations SET version=?`, v)
	return err
}

// UpToLatest applies all pending migrations.
func (m Manager) UpToLatest(ctx context.Context, db *sql.DB) error {
	if err := m.ensureTable(ctx, db); err != nil {
		return err
	}
	v, err := m.version(ctx, db)
	if err != nil {
		return err
	}
	for v < latestVersion {
		if err := m.up(ctx, db, v+1); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		v++
		if err := m.setVersion(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

func (m Manager) up(ctx context.Context, db *sql.DB, v int) error {
	var stmts []string
	switch v {
	case 1:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				created_at TEXT NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				status TEXT NOT NULL,
				file TEXT NOT NULL,
				page_content TEXT NOT NULL,
				branch TEXT NOT NULL DEFAULT 'main',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(status, created_at);`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				summary TEXT,
				created_at TEXT NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id, created_at);`,
			`CREATE TABLE IF NOT EXISTS knowledge (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				file TEXT NOT NULL,
				branch TEXT NOT NULL DEFAULT 'main',
				page_content TEXT NOT NULL,
				embedding TEXT NOT NULL,
				dim INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(project_id, file, branch)
			);`,
		}
	default:
		return fmt.Errorf("unknown migration version %d", v)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
