package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetsync/internal/domain"
)

// RunLogStore implements domain.SyncRunStore.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a RunLogStore backed by db.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// ── Run Logs ───────────────────────────────────────────────

func (s *RunLogStore) CreateRunLog(run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := s.db.conn.Exec(s.db.rebind(
		`INSERT INTO sync_run_logs (id, run_id, pipeline, collection_name, gate, started_at, finished_at,
		 status, rows_read, rows_dropped, rows_written, deleted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.RunID, run.Pipeline, run.Collection, run.Gate,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Status, run.RowsRead, run.RowsDropped, run.RowsWritten, run.Deleted, errMsg,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

func (s *RunLogStore) ListRunLogs(pipeline string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, run_id, pipeline, collection_name, gate, started_at, finished_at,
		status, rows_read, rows_dropped, rows_written, deleted, error
		FROM sync_run_logs`
	args := []any{}
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY started_at DESC, pipeline ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var r domain.SyncRun
		var errMsg sql.NullString
		var started, finished time.Time
		if err := rows.Scan(&r.ID, &r.RunID, &r.Pipeline, &r.Collection, &r.Gate, &started, &finished,
			&r.Status, &r.RowsRead, &r.RowsDropped, &r.RowsWritten, &r.Deleted, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		r.StartedAt, r.FinishedAt = started.UTC(), finished.UTC()
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
