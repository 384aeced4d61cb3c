package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward/backward schema step, gated by schema_version.
type Migration struct {
	Version *semver.Version
	Up      string
	Down    string
}

const migrationV1UpSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source      TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content,
	content='chunks',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TABLE IF NOT EXISTS chunks_vec (
	id        INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL,
	FOREIGN KEY(id) REFERENCES chunks(id) ON DELETE CASCADE
);
`

const migrationV1DownSQL = `
DROP TABLE IF EXISTS chunks_vec;
DROP TRIGGER IF EXISTS chunks_au;
DROP TRIGGER IF EXISTS chunks_ad;
DROP TRIGGER IF EXISTS chunks_ai;
DROP TABLE IF EXISTS chunks_fts;
DROP INDEX IF EXISTS idx_chunks_source;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS store_meta;
DROP TABLE IF EXISTS schema_version;
`

// AllMigrations lists every migration in ascending version order.
var AllMigrations = []Migration{
	{Version: semver.MustParse("1.0.0"), Up: migrationV1UpSQL, Down: migrationV1DownSQL},
}

// ApplyMigrations brings db up to the latest schema version, skipping
// migrations already recorded in schema_version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("store: bootstrap schema_version: %w", err)
	}

	current, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		if current != nil && !current.LessThan(m.Version) {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: apply migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: clear schema_version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.Version.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record schema_version %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %s: %w", m.Version, err)
		}
		current = m.Version
	}
	return nil
}

func currentSchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	row := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read schema_version: %w", err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("store: parse schema_version %q: %w", raw, err)
	}
	return v, nil
}

// RollbackMigration reverses migration m by running its Down script in one
// transaction. It does not check that m is the highest applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: rollback migration %s: %w", m.Version, err)
	}
	return tx.Commit()
}
