package manifest

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/bybit-data-downloader/internal/domain"
)

// Store keeps a history of download outcomes in SQLite. It is an
// optional extension: download correctness never depends on it, the
// on-disk size check is what makes re-runs idempotent.
type Store struct {
	db *sql.DB
}

// Entry is one recorded download outcome.
type Entry struct {
	ID           int64
	RemoteURL    string
	RelativePath string
	SizeBytes    int64
	Status       string
	Attempts     int
	LastError    string
	CompletedAt  time.Time
}

// Summary aggregates the recorded history.
type Summary struct {
	Total      int64
	Downloaded int64
	Skipped    int64
	Failed     int64
	TotalBytes int64
}

// Open opens (and migrates) the manifest database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_url TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_downloads_relative_path ON downloads(relative_path)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Record persists one fetch outcome.
func (s *Store) Record(outcome domain.FetchOutcome) error {
	lastError := ""
	if outcome.Err != nil {
		lastError = outcome.Err.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO downloads (remote_url, relative_path, size_bytes, status, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		outcome.Descriptor.RemoteURL,
		outcome.Descriptor.RelativePath,
		outcome.BytesWritten,
		outcome.Status.String(),
		outcome.Attempts,
		lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// GetSummary returns aggregate statistics over the recorded history.
func (s *Store) GetSummary() (*Summary, error) {
	summary := &Summary{}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'downloaded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(size_bytes), 0)
		FROM downloads`).Scan(
		&summary.Total,
		&summary.Downloaded,
		&summary.Skipped,
		&summary.Failed,
		&summary.TotalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}

	return summary, nil
}

// RecentFailures returns the most recent failed downloads, newest first.
func (s *Store) RecentFailures(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, remote_url, relative_path, size_bytes, status, attempts, last_error, completed_at
		FROM downloads
		WHERE status = 'failed'
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RemoteURL, &e.RelativePath, &e.SizeBytes,
			&e.Status, &e.Attempts, &e.LastError, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
