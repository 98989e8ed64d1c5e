package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: fetch → load → coerce → filter → sanitize → replace.

// Pipeline binds one source to one destination collection.
type Pipeline struct {
	Name       string
	Source     Locator
	Header     HeaderPolicy
	Delimiter  rune
	Rules      []ColumnRule
	Require    []string // columns that must be non-null for a row to survive
	Collection string
	InferTypes bool // convert numeric-looking columns without a rule
}

// GateMode controls how fetch failures affect the rest of a run.
type GateMode string

const (
	// GateAll fetches and cleans every source before any write; one fetch or
	// clean failure aborts the run with nothing written.
	GateAll GateMode = "all"
	// GateIndependent lets each pipeline fetch and write on its own.
	GateIndependent GateMode = "independent"
)

// ParseGateMode validates a gate mode name. Empty means GateAll.
func ParseGateMode(s string) (GateMode, error) {
	switch GateMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", GateAll:
		return GateAll, nil
	case GateIndependent:
		return GateIndependent, nil
	default:
		return "", fmt.Errorf("unknown gate mode %q (want %q or %q)", s, GateAll, GateIndependent)
	}
}

// Pipeline and run statuses.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"   // collection cleared, nothing to insert
	StatusError   = "error"
	StatusSkipped = "skipped" // never reached the sink
	StatusPartial = "partial" // run-level: some pipelines failed
)

// SyncResult is the outcome of one pipeline.
type SyncResult struct {
	Pipeline    string        `json:"pipeline"`
	Collection  string        `json:"collection"`
	Status      string        `json:"status"`
	RowsRead    int           `json:"rowsRead"`
	RowsDropped int           `json:"rowsDropped"`
	RowsWritten int           `json:"rowsWritten"`
	Deleted     int64         `json:"deleted"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`

	err error
}

// Err returns the error that failed the pipeline, if any.
func (r *SyncResult) Err() error { return r.err }

func (r *SyncResult) fail(err error) {
	r.Status = StatusError
	r.Error = err.Error()
	r.err = err
}

func (r *SyncResult) skip(reason string) {
	r.Status = StatusSkipped
	r.Error = reason
}

// abandon marks a pipeline skipped because the run itself was stopped. The
// cause is kept so the run does not report success.
func (r *SyncResult) abandon(err error) {
	r.skip("run cancelled: " + err.Error())
	r.err = err
}

// RunReport is the outcome of a whole run.
type RunReport struct {
	RunID      string        `json:"runId"`
	Gate       GateMode      `json:"gate"`
	Concurrent bool          `json:"concurrent"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Status     string        `json:"status"`
	Results    []*SyncResult `json:"results"`
}

// Inserted returns documents inserted per collection.
func (r *RunReport) Inserted() map[string]int {
	out := make(map[string]int, len(r.Results))
	for _, res := range r.Results {
		out[res.Collection] = res.RowsWritten
	}
	return out
}

// CleanStats describes what cleaning did to a table.
type CleanStats struct {
	RowsRead int
	Dropped  int
	Degraded int // non-empty cells a coercion rule could not parse
	Nulled   int // cells collapsed to Null by the sanitizer
	Inferred []string
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs pipelines against a destination.
type Engine struct {
	Dest         Destination
	Gate         GateMode
	Concurrent   bool
	FetchTimeout time.Duration
	Log          log.FieldLogger
}

func (e *Engine) logger() log.FieldLogger {
	if e.Log == nil {
		return log.StandardLogger()
	}
	return e.Log
}

// Run executes every pipeline once and returns a report. The returned error
// joins the failures of all failed pipelines; it is nil only when every
// pipeline succeeded.
func (e *Engine) Run(ctx context.Context, pipelines []Pipeline) (*RunReport, error) {
	gate := e.Gate
	if gate == "" {
		gate = GateAll
	}
	report := &RunReport{
		RunID:      uuid.New().String(),
		Gate:       gate,
		Concurrent: e.Concurrent,
		StartedAt:  time.Now(),
		Results:    make([]*SyncResult, len(pipelines)),
	}
	for i, p := range pipelines {
		report.Results[i] = &SyncResult{Pipeline: p.Name, Collection: p.Collection}
	}

	logger := e.logger().WithFields(log.Fields{"run": report.RunID, "gate": gate, "concurrent": e.Concurrent})
	logger.Info("sync run started")

	if gate == GateAll {
		e.runGated(ctx, pipelines, report.Results, logger)
	} else {
		e.runIndependent(ctx, pipelines, report.Results, logger)
	}

	report.FinishedAt = time.Now()
	report.Status = summarize(report.Results)

	var errs []error
	for _, res := range report.Results {
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}
	if len(errs) == 0 && report.Status != StatusSuccess {
		errs = append(errs, fmt.Errorf("run finished with status %s", report.Status))
	}

	logger.WithFields(log.Fields{
		"status":   report.Status,
		"duration": report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	}).Info("sync run finished")
	return report, errors.Join(errs...)
}

// runGated fetches and cleans everything first. Nothing is written unless
// every fetch and every clean succeeded.
func (e *Engine) runGated(ctx context.Context, pipelines []Pipeline, results []*SyncResult, logger log.FieldLogger) {
	raws := make([][]byte, len(pipelines))
	starts := make([]time.Time, len(pipelines))

	fetchOne := func(ctx context.Context, i int) error {
		starts[i] = time.Now()
		raw, err := e.fetch(ctx, pipelines[i], logger)
		if err != nil {
			return err
		}
		raws[i] = raw
		return nil
	}

	failed := false
	if e.Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		fetchErrs := make([]error, len(pipelines))
		for i := range pipelines {
			g.Go(func() error {
				err := fetchOne(gctx, i)
				mu.Lock()
				fetchErrs[i] = err
				mu.Unlock()
				return err
			})
		}
		if g.Wait() != nil {
			failed = true
			for i, err := range fetchErrs {
				// Siblings cancelled by the first failure are skipped, not failed.
				if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() == nil) {
					results[i].fail(err)
					results[i].Duration = time.Since(starts[i])
				}
			}
		}
	} else {
		for i := range pipelines {
			if err := fetchOne(ctx, i); err != nil {
				results[i].fail(err)
				results[i].Duration = time.Since(starts[i])
				failed = true
				break
			}
		}
	}
	if failed {
		closeGate(results, "fetch gate closed: another source failed to fetch")
		logger.Warn("fetch gate closed, no collection was written")
		return
	}

	tables := make([]*Table, len(pipelines))
	for i, p := range pipelines {
		t, err := e.clean(p, raws[i], results[i], logger)
		if err != nil {
			results[i].Duration = time.Since(starts[i])
			failed = true
			continue
		}
		tables[i] = t
	}
	if failed {
		closeGate(results, "gate closed: another source failed to clean")
		logger.Warn("clean failed, no collection was written")
		return
	}

	e.forEach(ctx, pipelines, results, func(ctx context.Context, i int) error {
		defer func() { results[i].Duration = time.Since(starts[i]) }()
		return e.write(ctx, pipelines[i], tables[i], results[i], logger)
	})
}

// closeGate skips every pipeline that has not already failed.
func closeGate(results []*SyncResult, reason string) {
	for _, res := range results {
		if res.Status == "" {
			res.skip(reason)
		}
	}
}

// runIndependent runs each pipeline end to end on its own.
func (e *Engine) runIndependent(ctx context.Context, pipelines []Pipeline, results []*SyncResult, logger log.FieldLogger) {
	e.forEach(ctx, pipelines, results, func(ctx context.Context, i int) error {
		start := time.Now()
		raw, err := e.fetch(ctx, pipelines[i], logger)
		if err != nil {
			results[i].fail(err)
			results[i].Duration = time.Since(start)
			return nil
		}
		return e.process(ctx, pipelines[i], raw, results[i], start, logger)
	})
}

// forEach runs fn per pipeline. Concurrent runs never cancel siblings.
// Sequential runs stop at the first sink failure and skip the rest.
func (e *Engine) forEach(ctx context.Context, pipelines []Pipeline, results []*SyncResult, fn func(context.Context, int) error) {
	if e.Concurrent {
		var g errgroup.Group
		for i := range pipelines {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					results[i].abandon(err)
					return nil
				}
				_ = fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
		return
	}

	for i := range pipelines {
		if err := ctx.Err(); err != nil {
			results[i].abandon(err)
			continue
		}
		var sinkErr *SinkWriteError
		if err := fn(ctx, i); errors.As(err, &sinkErr) {
			for _, res := range results[i+1:] {
				res.skip(fmt.Sprintf("stopped after write failure on %s", sinkErr.Collection))
			}
			return
		}
	}
}

func (e *Engine) fetch(ctx context.Context, p Pipeline, logger log.FieldLogger) ([]byte, error) {
	loc := p.Source
	if loc.Name == "" {
		loc.Name = p.Name
	}
	raw, err := Fetch(ctx, loc, e.FetchTimeout)
	if err != nil {
		logger.WithField("pipeline", p.Name).WithError(err).Error("fetch failed")
		return nil, err
	}
	logger.WithFields(log.Fields{"pipeline": p.Name, "bytes": len(raw)}).Debug("fetched source")
	return raw, nil
}

// process cleans raw and replaces the pipeline's collection. Failures are
// recorded on res; the returned error is the same failure.
func (e *Engine) process(ctx context.Context, p Pipeline, raw []byte, res *SyncResult, start time.Time, logger log.FieldLogger) error {
	defer func() { res.Duration = time.Since(start) }()

	t, err := e.clean(p, raw, res, logger)
	if err != nil {
		return err
	}
	return e.write(ctx, p, t, res, logger)
}

// clean runs Clean for p and records row counts and failures on res.
func (e *Engine) clean(p Pipeline, raw []byte, res *SyncResult, logger log.FieldLogger) (*Table, error) {
	plog := logger.WithFields(log.Fields{"pipeline": p.Name, "collection": p.Collection})

	t, stats, err := Clean(p, raw)
	res.RowsRead = stats.RowsRead
	res.RowsDropped = stats.Dropped
	if err != nil {
		plog.WithError(err).Error("clean failed")
		res.fail(err)
		return nil, err
	}
	plog.WithFields(log.Fields{
		"columns":  len(t.Columns),
		"rows":     t.Len(),
		"dropped":  stats.Dropped,
		"degraded": stats.Degraded,
		"nulled":   stats.Nulled,
		"inferred": stats.Inferred,
	}).Info("cleaned")
	return t, nil
}

// write replaces p's collection with t and records the outcome on res.
func (e *Engine) write(ctx context.Context, p Pipeline, t *Table, res *SyncResult, logger log.FieldLogger) error {
	plog := logger.WithFields(log.Fields{"pipeline": p.Name, "collection": p.Collection})

	wr, err := e.Dest.Replace(ctx, p.Collection, t)
	if wr != nil {
		res.Deleted = wr.Deleted
		res.RowsWritten = wr.Inserted
	}
	if err != nil {
		plog.WithError(err).Error("write failed")
		res.fail(err)
		return err
	}

	res.Status = StatusSuccess
	if wr.Empty {
		res.Status = StatusEmpty
		plog.WithField("deleted", wr.Deleted).Warn("no rows survived cleaning, collection left empty")
		return nil
	}
	plog.WithFields(log.Fields{"deleted": wr.Deleted, "inserted": wr.Inserted}).Info("collection replaced")
	return nil
}

// Clean runs the load, coerce, filter and sanitize stages over raw.
func Clean(p Pipeline, raw []byte) (*Table, CleanStats, error) {
	var stats CleanStats

	t, err := Load(p.Name, raw, LoadOptions{Header: p.Header, Delimiter: p.Delimiter})
	if err != nil {
		return nil, stats, err
	}
	stats.RowsRead = t.Len()

	coercer := &Coercer{Rules: p.Rules}
	ruled, err := coercer.Columns(t)
	if err != nil {
		return nil, stats, err
	}
	for _, col := range p.Require {
		if !t.HasColumn(col) {
			return nil, stats, &SchemaMismatchError{Source: p.Name, Column: col, Reason: "required column is missing"}
		}
	}

	if p.InferTypes {
		skip := make(map[string]bool, len(ruled))
		for col := range ruled {
			skip[col] = true
		}
		stats.Inferred = InferTypes(t, skip)
	}

	if stats.Degraded, err = coercer.Apply(t); err != nil {
		return nil, stats, err
	}

	filters := make([]Transformer, 0, len(p.Require))
	for _, col := range p.Require {
		filters = append(filters, &RequireNonNull{Field: col})
	}
	stats.Dropped = Filter(t, filters)
	stats.Nulled = Sanitize(t)
	return t, stats, nil
}

// Preview fetches and cleans one pipeline and returns up to maxRows records.
// Nothing is written.
func (e *Engine) Preview(ctx context.Context, p Pipeline, maxRows int) (*Table, CleanStats, error) {
	raw, err := e.fetch(ctx, p, e.logger())
	if err != nil {
		return nil, CleanStats{}, err
	}
	t, stats, err := Clean(p, raw)
	if err != nil {
		return nil, stats, err
	}
	t.Records = t.Head(maxRows)
	return t, stats, nil
}

func summarize(results []*SyncResult) string {
	ok, bad := 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusSuccess, StatusEmpty:
			ok++
		default:
			bad++
		}
	}
	switch {
	case bad == 0:
		return StatusSuccess
	case ok == 0:
		return StatusError
	default:
		return StatusPartial
	}
}
