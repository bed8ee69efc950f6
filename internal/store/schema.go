package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

const ddl = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS descriptors (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    file         TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    entity_kind  TEXT NOT NULL,
    language     TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL,
    purpose      TEXT NOT NULL DEFAULT '',
    source       TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_descriptors_file ON descriptors(file, content_hash);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const vecDDL = `CREATE VIRTUAL TABLE IF NOT EXISTS vec_descriptors USING vec0(
    descriptor_id INTEGER PRIMARY KEY,
    embedding float[%d]
);`

// MetaEmbeddingDim records the width the vec table was created with.
const MetaEmbeddingDim = "embedding_dim"

// Init creates the schema. If the vec table exists with a different width
// than dim, it is dropped together with every descriptor row.
func Init(db *sql.DB, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	var stored string
	err := db.QueryRow("SELECT value FROM meta WHERE key = ?", MetaEmbeddingDim).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if stored != "" && stored != strconv.Itoa(dim) {
		if _, err := db.Exec("DROP TABLE IF EXISTS vec_descriptors"); err != nil {
			return fmt.Errorf("drop vec table: %w", err)
		}
		if _, err := db.Exec("DELETE FROM descriptors"); err != nil {
			return fmt.Errorf("clear descriptors: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf(vecDDL, dim)); err != nil {
		return fmt.Errorf("create vec table: %w", err)
	}
	_, err = db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		MetaEmbeddingDim, strconv.Itoa(dim),
	)
	return err
}
