package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// ProgressTracker records per-document ingestion state in SQLite so an
// interrupted run resumes where it stopped. One tracker serves one
// document type; SCOTUS and executive-order rows share a database file
// without touching each other.
//
// Every operation autocommits. A document moves
// pending -> processing -> completed|failed, failed documents return to
// processing on retry, and stale processing rows are swept back to
// pending at ingester startup.
type ProgressTracker struct {
	db      *sql.DB
	path    string
	docType string
	lock    *flock.Flock
	logger  *slog.Logger
}

// NewProgressTracker opens the progress database, creating file and
// schema as needed. A lock file next to the database rejects a second
// concurrent ingester instead of letting two runs interleave writes.
// An empty path opens an in-memory database for tests.
func NewProgressTracker(path, documentType string, logger *slog.Logger) (*ProgressTracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var lock *flock.Flock
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, gverrors.StorageError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, gverrors.StorageError("failed to acquire progress database lock", err)
		}
		if !locked {
			return nil, gverrors.New(gverrors.ErrCodeProgressLocked,
				fmt.Sprintf("progress database %s is locked by another process", path), nil).
				WithSuggestion("wait for the running ingestion to finish or pass a different --progress-db path")
		}

		if validErr := validateProgressDB(path); validErr != nil {
			_ = lock.Unlock()
			return nil, gverrors.New(gverrors.ErrCodeProgressDB,
				fmt.Sprintf("progress database %s failed validation", path), validErr).
				WithSuggestion("move the file aside and re-run; ingestion will rebuild progress from scratch")
		}

		// _busy_timeout handles lock contention from readers
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, gverrors.StorageError("failed to open progress database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set the
	// pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, gverrors.StorageError("failed to set pragma", err)
		}
	}

	t := &ProgressTracker{
		db:      db,
		path:    path,
		docType: documentType,
		lock:    lock,
		logger:  logger,
	}

	if err := t.initSchema(); err != nil {
		_ = db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, gverrors.StorageError("failed to initialize progress schema", err)
	}

	return t, nil
}

// validateProgressDB rejects a corrupted database before an ingester
// locks onto it. Progress rows are the resume state, so failing loudly
// beats silently re-processing everything.
func validateProgressDB(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (t *ProgressTracker) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_progress (
		document_id TEXT NOT NULL,
		document_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processing_time_ms INTEGER,
		PRIMARY KEY (document_id, document_type)
	);

	CREATE INDEX IF NOT EXISTS idx_status_type
	ON document_progress(document_type, status);

	CREATE TABLE IF NOT EXISTS ingestion_runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_type TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		total_documents INTEGER DEFAULT 0,
		completed_documents INTEGER DEFAULT 0,
		failed_documents INTEGER DEFAULT 0,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		parameters TEXT
	);
	`

	_, err := t.db.Exec(schema)
	return err
}

// DocumentType returns the document type this tracker serves.
func (t *ProgressTracker) DocumentType() string {
	return t.docType
}

// StartRun records a new ingestion run and returns its ID.
func (t *ProgressTracker) StartRun(ctx context.Context, startDate, endDate string, parameters map[string]any) (int64, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	params, err := json.Marshal(parameters)
	if err != nil {
		return 0, gverrors.StorageError("failed to encode run parameters", err)
	}

	res, err := t.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (document_type, start_date, end_date, parameters)
		 VALUES (?, ?, ?, ?)`,
		t.docType, startDate, endDate, string(params))
	if err != nil {
		return 0, gverrors.StorageError("failed to start run", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, gverrors.StorageError("failed to read run id", err)
	}
	return runID, nil
}

// EndRun closes a run, recounting document totals from the progress
// rows so the history row reflects the state at the moment it ended.
func (t *ProgressTracker) EndRun(ctx context.Context, runID int64) error {
	_, err := t.db.ExecContext(ctx,
		`UPDATE ingestion_runs
		 SET completed_at = CURRENT_TIMESTAMP,
		     total_documents = (
		         SELECT COUNT(*) FROM document_progress
		         WHERE document_type = ?
		     ),
		     completed_documents = (
		         SELECT COUNT(*) FROM document_progress
		         WHERE document_type = ? AND status = 'completed'
		     ),
		     failed_documents = (
		         SELECT COUNT(*) FROM document_progress
		         WHERE document_type = ? AND status = 'failed'
		     )
		 WHERE run_id = ?`,
		t.docType, t.docType, t.docType, runID)
	if err != nil {
		return gverrors.StorageError("failed to end run", err)
	}
	return nil
}

// AddDocument registers a document as pending. Re-adding a known
// document is a no-op, which keeps completed rows intact across runs.
func (t *ProgressTracker) AddDocument(ctx context.Context, documentID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return gverrors.StorageError("failed to encode document metadata", err)
	}

	_, err = t.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO document_progress (document_id, document_type, status, metadata)
		 VALUES (?, ?, 'pending', ?)`,
		documentID, t.docType, string(meta))
	if err != nil {
		return gverrors.StorageError(fmt.Sprintf("failed to add document %s", documentID), err)
	}
	return nil
}

// IsProcessed reports whether a document has completed successfully.
func (t *ProgressTracker) IsProcessed(ctx context.Context, documentID string) (bool, error) {
	var status string
	err := t.db.QueryRowContext(ctx,
		`SELECT status FROM document_progress
		 WHERE document_id = ? AND document_type = ? AND status = 'completed'`,
		documentID, t.docType).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, gverrors.StorageError(fmt.Sprintf("failed to check document %s", documentID), err)
	}
	return true, nil
}

// MarkProcessing flags a document as currently being worked on.
func (t *ProgressTracker) MarkProcessing(ctx context.Context, documentID string) error {
	return t.updateStatus(ctx, documentID,
		`UPDATE document_progress
		 SET status = 'processing', updated_at = CURRENT_TIMESTAMP
		 WHERE document_id = ? AND document_type = ?`)
}

// MarkCompleted records success and clears any earlier error message
// so a recovered document no longer reports its old failure.
func (t *ProgressTracker) MarkCompleted(ctx context.Context, documentID string, elapsed time.Duration) error {
	_, err := t.db.ExecContext(ctx,
		`UPDATE document_progress
		 SET status = 'completed',
		     updated_at = CURRENT_TIMESTAMP,
		     processing_time_ms = ?,
		     error_message = NULL
		 WHERE document_id = ? AND document_type = ?`,
		elapsed.Milliseconds(), documentID, t.docType)
	if err != nil {
		return gverrors.StorageError(fmt.Sprintf("failed to mark document %s completed", documentID), err)
	}
	return nil
}

// MarkFailed records a failure with its error message. Failed
// documents are picked up again by the next run.
func (t *ProgressTracker) MarkFailed(ctx context.Context, documentID, errorMessage string) error {
	_, err := t.db.ExecContext(ctx,
		`UPDATE document_progress
		 SET status = 'failed',
		     error_message = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE document_id = ? AND document_type = ?`,
		errorMessage, documentID, t.docType)
	if err != nil {
		return gverrors.StorageError(fmt.Sprintf("failed to mark document %s failed", documentID), err)
	}
	return nil
}

func (t *ProgressTracker) updateStatus(ctx context.Context, documentID, query string) error {
	_, err := t.db.ExecContext(ctx, query, documentID, t.docType)
	if err != nil {
		return gverrors.StorageError(fmt.Sprintf("failed to update document %s", documentID), err)
	}
	return nil
}

// PendingDocuments returns the IDs still needing work: pending rows
// plus failed rows queued for retry, oldest first. rowid breaks
// same-second ties so the order follows insertion. limit <= 0 returns
// all of them.
func (t *ProgressTracker) PendingDocuments(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT document_id FROM document_progress
	          WHERE document_type = ? AND status IN ('pending', 'failed')
	          ORDER BY created_at, rowid`
	args := []any{t.docType}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gverrors.StorageError("failed to query pending documents", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, gverrors.StorageError("failed to scan pending document", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Statistics summarizes progress for this tracker's document type.
func (t *ProgressTracker) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{DocumentType: t.docType}

	rows, err := t.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM document_progress
		 WHERE document_type = ?
		 GROUP BY status`,
		t.docType)
	if err != nil {
		return nil, gverrors.StorageError("failed to count documents", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, gverrors.StorageError("failed to scan status count", err)
		}
		switch Status(status) {
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, gverrors.StorageError("failed to read status counts", err)
	}

	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished) * 100
	}

	var avgTime sql.NullFloat64
	err = t.db.QueryRowContext(ctx,
		`SELECT AVG(processing_time_ms) FROM document_progress
		 WHERE document_type = ? AND status = 'completed' AND processing_time_ms IS NOT NULL`,
		t.docType).Scan(&avgTime)
	if err != nil {
		return nil, gverrors.StorageError("failed to compute average processing time", err)
	}
	if avgTime.Valid {
		stats.AvgProcessingTimeMS = int64(avgTime.Float64)
	}

	failed, err := t.db.QueryContext(ctx,
		`SELECT document_id, error_message, updated_at
		 FROM document_progress
		 WHERE document_type = ? AND status = 'failed'
		 ORDER BY updated_at DESC
		 LIMIT 10`,
		t.docType)
	if err != nil {
		return nil, gverrors.StorageError("failed to query failed documents", err)
	}
	defer failed.Close()

	for failed.Next() {
		var doc FailedDocument
		var errMsg sql.NullString
		if err := failed.Scan(&doc.DocumentID, &errMsg, &doc.FailedAt); err != nil {
			return nil, gverrors.StorageError("failed to scan failed document", err)
		}
		doc.Error = errMsg.String
		stats.FailedDocuments = append(stats.FailedDocuments, doc)
	}
	return stats, failed.Err()
}

// ResetProcessingStatus sweeps documents stranded in processing back
// to pending. Called at ingester startup to recover from a crash or
// interrupt. Returns how many rows were reset.
func (t *ProgressTracker) ResetProcessingStatus(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx,
		`UPDATE document_progress
		 SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		 WHERE document_type = ? AND status = 'processing'`,
		t.docType)
	if err != nil {
		return 0, gverrors.StorageError("failed to reset processing documents", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, gverrors.StorageError("failed to count reset documents", err)
	}
	if count > 0 {
		t.logger.Info("reset stale processing documents",
			slog.String("document_type", t.docType),
			slog.Int64("count", count))
	}
	return count, nil
}

// RunHistory returns recent ingestion runs, newest first.
func (t *ProgressTracker) RunHistory(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT run_id, document_type, start_date, end_date,
		        total_documents, completed_documents, failed_documents,
		        started_at, completed_at, parameters
		 FROM ingestion_runs
		 WHERE document_type = ?
		 ORDER BY started_at DESC, run_id DESC
		 LIMIT ?`,
		t.docType, limit)
	if err != nil {
		return nil, gverrors.StorageError("failed to query run history", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startDate, endDate, completedAt, parameters sql.NullString
		if err := rows.Scan(&run.RunID, &run.DocumentType, &startDate, &endDate,
			&run.TotalDocuments, &run.CompletedDocuments, &run.FailedDocuments,
			&run.StartedAt, &completedAt, &parameters); err != nil {
			return nil, gverrors.StorageError("failed to scan run", err)
		}
		run.StartDate = startDate.String
		run.EndDate = endDate.String
		run.CompletedAt = completedAt.String
		run.Parameters = parameters.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close checkpoints the WAL, closes the database, and releases the
// lock file. Idempotent.
func (t *ProgressTracker) Close() error {
	if t.db == nil {
		return nil
	}

	_, _ = t.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := t.db.Close()
	t.db = nil

	if t.lock != nil {
		_ = t.lock.Unlock()
		t.lock = nil
	}
	return err
}
