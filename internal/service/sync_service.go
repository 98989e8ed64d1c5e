package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Sync Service — business logic around a sync run
// ─────────────────────────────────────────────────────────────

// ErrRunInProgress is returned when a run would replace a collection that
// another run in this process is still writing.
var ErrRunInProgress = errors.New("a sync run is already in progress for one of these collections")

// SyncService runs the pipeline catalog, records history and emits events.
type SyncService struct {
	engine    *etl.Engine
	pipelines []etl.Pipeline
	runs      domain.SyncRunStore // optional
	emitter   EventEmitter
	guard     collectionGuard
	timeout   time.Duration
}

// NewSyncService creates a SyncService. runs may be nil to disable history.
func NewSyncService(engine *etl.Engine, pipelines []etl.Pipeline, runs domain.SyncRunStore, emitter EventEmitter) *SyncService {
	if emitter == nil {
		emitter = &LogEmitter{}
	}
	return &SyncService{
		engine:    engine,
		pipelines: pipelines,
		runs:      runs,
		emitter:   emitter,
	}
}

// SetTimeout bounds every subsequent run. Zero means no bound.
func (s *SyncService) SetTimeout(d time.Duration) { s.timeout = d }

// Pipelines returns the configured catalog.
func (s *SyncService) Pipelines() []etl.Pipeline { return s.pipelines }

// Run executes the selected pipelines (all when only is empty) once.
// The report is returned even when the error is non-nil.
func (s *SyncService) Run(ctx context.Context, only []string) (*etl.RunReport, error) {
	selected, err := etl.SelectPipelines(s.pipelines, only)
	if err != nil {
		return nil, err
	}
	collections := make([]string, len(selected))
	for i, p := range selected {
		collections[i] = p.Collection
	}

	if !s.guard.TryLock(collections...) {
		return nil, ErrRunInProgress
	}
	defer s.guard.Unlock(collections...)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.emitter.Emit(ctx, EventSyncStarted, collections)
	report, runErr := s.engine.Run(ctx, selected)
	s.record(report)

	if runErr != nil {
		s.emitter.Emit(ctx, EventSyncFailed, report)
		return report, fmt.Errorf("sync %s: %w", report.Status, runErr)
	}
	s.emitter.Emit(ctx, EventSyncCompleted, report)
	return report, nil
}

// record persists one history row per pipeline. History is best effort:
// a failure here never changes the outcome of the run.
func (s *SyncService) record(report *etl.RunReport) {
	if s.runs == nil || report == nil {
		return
	}
	for _, res := range report.Results {
		run := &domain.SyncRun{
			RunID:       report.RunID,
			Pipeline:    res.Pipeline,
			Collection:  res.Collection,
			Gate:        string(report.Gate),
			StartedAt:   report.StartedAt,
			FinishedAt:  report.FinishedAt,
			Status:      res.Status,
			RowsRead:    res.RowsRead,
			RowsDropped: res.RowsDropped,
			RowsWritten: res.RowsWritten,
			Deleted:     res.Deleted,
			Error:       res.Error,
		}
		if err := s.runs.CreateRunLog(run); err != nil {
			log.WithError(err).WithField("pipeline", res.Pipeline).Warn("record run history")
		}
	}
}

// Preview fetches and cleans one pipeline without writing.
func (s *SyncService) Preview(ctx context.Context, name string, rows int) (*etl.Table, etl.CleanStats, error) {
	p, err := etl.FindPipeline(s.pipelines, name)
	if err != nil {
		return nil, etl.CleanStats{}, err
	}
	return s.engine.Preview(ctx, p, rows)
}

// History lists recorded runs, newest first.
func (s *SyncService) History(pipeline string, limit int) ([]domain.SyncRun, error) {
	if s.runs == nil {
		return nil, errors.New("run history is disabled")
	}
	return s.runs.ListRunLogs(pipeline, limit)
}

// WaitRunning blocks until in-flight runs finish or ctx is done.
func (s *SyncService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}
