package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_items_and_tags",
		sql: `
CREATE TABLE IF NOT EXISTS items (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	title             TEXT NOT NULL,
	url               TEXT,
	raw_input         TEXT NOT NULL,
	author            TEXT,
	description       TEXT,
	image_url         TEXT,
	image_width       INTEGER,
	image_height      INTEGER,
	favicon_url       TEXT,
	site_name         TEXT,
	published_at      TIMESTAMPTZ,
	word_count        INTEGER,
	reading_time      INTEGER,
	enrichment_source TEXT,
	metadata_status   TEXT NOT NULL DEFAULT 'pending',
	status            TEXT NOT NULL DEFAULT 'inbox',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_items_created_at ON items (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_items_status ON items (status);

CREATE TABLE IF NOT EXISTS tags (
	slug  TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	color TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_tags (
	item_id  TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	tag_slug TEXT NOT NULL REFERENCES tags (slug) ON DELETE CASCADE,
	PRIMARY KEY (item_id, tag_slug)
);`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS shelf_schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM shelf_schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.version, m.name, err)
		}
		log.WithFields(logrus.Fields{"version": m.version, "name": m.name}).Info("Applied migration")
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	query, args, err := psql.Insert("shelf_schema_version").Columns("version", "name").Values(m.version, m.name).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}
