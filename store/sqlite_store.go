package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/planvane/planvane/models"
)

// SQLiteProjectStore keeps the state document in a single-row SQLite
// table. The document column holds the full JSON; version and
// updated_at are denormalized for ad-hoc inspection with the sqlite3
// shell.
type SQLiteProjectStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS project_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	document   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

// NewSQLiteProjectStore opens (and if needed creates) the database at
// path. The parent directory is created if missing.
func NewSQLiteProjectStore(path string) (*SQLiteProjectStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	// One writer; a second connection would defeat the single-writer
	// ownership of the state document.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteProjectStore{db: db}, nil
}

// Load reads the single document row. No row means first run: (nil, nil).
func (s *SQLiteProjectStore) Load() (*models.ProjectState, error) {
	var document string
	err := s.db.QueryRow(`SELECT document FROM project_state WHERE id = 1`).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var state models.ProjectState
	if err := json.Unmarshal([]byte(document), &state); err != nil {
		return nil, fmt.Errorf("decode state document: %w", err)
	}
	return &state, nil
}

// Save upserts the single document row in one statement, which SQLite
// applies atomically.
func (s *SQLiteProjectStore) Save(state *models.ProjectState) error {
	if state == nil {
		return errors.New("cannot save nil state")
	}
	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO project_state (id, document, version, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document = excluded.document,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		string(document), state.Version, state.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteProjectStore) Close() error {
	return s.db.Close()
}
