package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Storage keeps the run history. The result log stays the source of truth
// for what has been crawled; this database is only read for reporting.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		sites_total INTEGER DEFAULT 0,
		sites_found INTEGER DEFAULT 0,
		termination_reason TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS site_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		site TEXT NOT NULL,
		target_found INTEGER NOT NULL,
		pages_visited INTEGER DEFAULT 0,
		links_skipped INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		crawled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_site_results_run ON site_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_site_results_site ON site_results(site);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun registers a new run and returns its generated ID
func (s *Storage) StartRun(sitesTotal int) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, started_at, sites_total)
		VALUES (?, ?, ?)
	`, runID, time.Now().UTC(), sitesTotal)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return runID, nil
}

// RecordSiteResult stores one site verdict and bumps the run's found counter
func (s *Storage) RecordSiteResult(runID string, result SiteResult, stats TraversalStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO site_results (run_id, site, target_found, pages_visited, links_skipped, duration_ms, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, result.Site, result.TargetFound, stats.Visited, stats.Skipped, stats.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert site result: %w", err)
	}

	if result.TargetFound {
		if _, err := tx.Exec("UPDATE runs SET sites_found = sites_found + 1 WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to increment found count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit site result: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and termination reason
func (s *Storage) FinishRun(runID, reason string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, termination_reason = ?
		WHERE run_id = ?
	`, time.Now().UTC(), reason, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID, returns nil if not found
func (s *Storage) GetRun(runID string) (*Run, error) {
	var run Run
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, sites_total, sites_found, termination_reason
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.StartedAt, &finished, &run.SitesTotal, &run.SitesFound, &run.TerminationReason)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}

	return &run, nil
}

// ListRunResults returns the site results of one run in insertion order
func (s *Storage) ListRunResults(runID string) ([]*SiteRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, site, target_found, pages_visited, links_skipped, duration_ms, crawled_at
		FROM site_results
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run results: %w", err)
	}
	defer rows.Close()

	var records []*SiteRecord
	for rows.Next() {
		var rec SiteRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Site, &rec.TargetFound, &rec.PagesVisited, &rec.LinksSkipped, &rec.DurationMs, &rec.CrawledAt); err != nil {
			return nil, fmt.Errorf("failed to scan site result: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site results: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
