package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportRun is one row of the import audit trail.
type ImportRun struct {
	ID                  int64
	RunUUID             string
	SourceID            int64
	StartedAt           time.Time
	FinishedAt          sql.NullTime
	Status              string
	MessagesSeen        int64
	MessagesImported    int64
	AttachmentsImported int64
	Error               sql.NullString
}

// Import run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// StartImportRun records the beginning of an import and returns its row id.
func (s *Store) StartImportRun(sourceID int64) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO import_runs (run_uuid, source_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), sourceID, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("start import run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("import run id: %w", err)
	}
	return id, nil
}

// CompleteImportRun marks a run finished with the given status and counters.
func (s *Store) CompleteImportRun(runID int64, status string, seen, imported, attachments int64) error {
	_, err := s.db.Exec(`
		UPDATE import_runs
		SET finished_at = ?, status = ?,
		    messages_seen = ?, messages_imported = ?, attachments_imported = ?
		WHERE id = ?
	`, time.Now().UTC(), status, seen, imported, attachments, runID)
	if err != nil {
		return fmt.Errorf("complete import run %d: %w", runID, err)
	}
	return nil
}

// FailImportRun marks a run failed and records the error message.
func (s *Store) FailImportRun(runID int64, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.Exec(`
		UPDATE import_runs
		SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`, time.Now().UTC(), RunStatusFailed, msg, runID)
	if err != nil {
		return fmt.Errorf("fail import run %d: %w", runID, err)
	}
	return nil
}

// ListImportRuns returns the most recent runs for a source, newest first.
func (s *Store) ListImportRuns(sourceID int64, limit int) ([]*ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_uuid, source_id, started_at, finished_at, status,
		       messages_seen, messages_imported, attachments_imported, error
		FROM import_runs
		WHERE source_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*ImportRun
	for rows.Next() {
		r := &ImportRun{}
		if err := rows.Scan(&r.ID, &r.RunUUID, &r.SourceID, &r.StartedAt,
			&r.FinishedAt, &r.Status, &r.MessagesSeen, &r.MessagesImported,
			&r.AttachmentsImported, &r.Error); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
