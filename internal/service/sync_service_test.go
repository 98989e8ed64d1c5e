package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	_ "sheetsync/internal/etl/sources"
	"sheetsync/internal/service"
	"sheetsync/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// SyncService tests
// File sources feed a recording destination; history goes to SQLite.
// ─────────────────────────────────────────────────────────────

type recordingDest struct {
	mu      sync.Mutex
	written map[string]int
	hold    string        // collection whose Replace waits on block
	block   chan struct{}
	entered chan struct{} // closed once the held Replace is reached
	once    sync.Once
	fail    map[string]error
}

func (d *recordingDest) Replace(ctx context.Context, collection string, t *etl.Table) (*etl.WriteResult, error) {
	if d.hold != "" && collection == d.hold {
		d.once.Do(func() { close(d.entered) })
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[collection]; err != nil {
		return &etl.WriteResult{Collection: collection}, &etl.SinkWriteError{Collection: collection, Stage: etl.StageDelete, Err: err}
	}
	if d.written == nil {
		d.written = map[string]int{}
	}
	d.written[collection] = t.Len()
	return &etl.WriteResult{Collection: collection, Inserted: t.Len(), Empty: t.Len() == 0}, nil
}

func writeSources(t *testing.T) map[string]etl.Locator {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		etl.PipelineDS:     "Test Date,Count\n2024-01-01,5\n,x\n",
		etl.PipelineReport: "Center,Tests Count,Sample Processed,Report Printed,Report Distributed\nA,1,2,3,4\n",
		etl.PipelineCare:   "h1,h2,h3,h4,h5,h6,h7,h8,h9,h10,h11,h12,h13,h14,h15,h16,h17\nPune,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16\n",
	}
	locs := map[string]etl.Locator{}
	for name, content := range files {
		path := filepath.Join(dir, name+".csv")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		locs[name] = etl.Locator{URL: path}
	}
	return locs
}

func quietEngine(dest etl.Destination) *etl.Engine {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return &etl.Engine{Dest: dest, Gate: etl.GateAll, FetchTimeout: time.Second, Log: logger}
}

func newHistory(t *testing.T) *storage.RunLogStore {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewRunLogStore(db)
}

func TestSyncService_RunRecordsHistoryAndEmits(t *testing.T) {
	dest := &recordingDest{}
	history := newHistory(t)
	emitter := &service.MockEmitter{}
	svc := service.NewSyncService(quietEngine(dest), etl.DefaultPipelines(writeSources(t)), history, emitter)

	report, err := svc.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, etl.StatusSuccess, report.Status)
	assert.Equal(t, map[string]int{
		"command_center_ds": 1, "command_center_report": 1, "command_center_care": 1,
	}, dest.written)
	assert.Equal(t, []string{service.EventSyncStarted, service.EventSyncCompleted}, emitter.Names())

	runs, err := svc.History("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, report.RunID, r.RunID)
		assert.Equal(t, "success", r.Status)
	}

	ds, err := svc.History(etl.PipelineDS, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 2, ds[0].RowsRead)
	assert.Equal(t, 1, ds[0].RowsDropped)
	assert.Equal(t, 1, ds[0].RowsWritten)
}

func TestSyncService_RunOnlySelected(t *testing.T) {
	dest := &recordingDest{}
	svc := service.NewSyncService(quietEngine(dest), etl.DefaultPipelines(writeSources(t)), nil, &service.MockEmitter{})

	report, err := svc.Run(context.Background(), []string{etl.PipelineCare})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, map[string]int{"command_center_care": 1}, dest.written)

	_, err = svc.Run(context.Background(), []string{"unknown"})
	assert.Error(t, err)
}

func TestSyncService_FailureIsReportedAndRecorded(t *testing.T) {
	dest := &recordingDest{fail: map[string]error{"command_center_report": errors.New("unreachable")}}
	history := newHistory(t)
	emitter := &service.MockEmitter{}
	svc := service.NewSyncService(quietEngine(dest), etl.DefaultPipelines(writeSources(t)), history, emitter)

	report, err := svc.Run(context.Background(), nil)

	var swe *etl.SinkWriteError
	require.True(t, errors.As(err, &swe))
	assert.Equal(t, etl.StatusPartial, report.Status)
	assert.Equal(t, []string{service.EventSyncStarted, service.EventSyncFailed}, emitter.Names())

	runs, err := svc.History(etl.PipelineReport, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, etl.StatusError, runs[0].Status)
	assert.Contains(t, runs[0].Error, "unreachable")
}

func TestSyncService_RefusesOverlappingRun(t *testing.T) {
	dest := &recordingDest{
		hold:    "command_center_ds",
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	svc := service.NewSyncService(quietEngine(dest), etl.DefaultPipelines(writeSources(t)), nil, &service.MockEmitter{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), []string{etl.PipelineDS})
		done <- err
	}()

	select {
	case <-dest.entered:
	case <-time.After(time.Second):
		t.Fatal("first run never reached the destination")
	}

	_, err := svc.Run(context.Background(), []string{etl.PipelineDS})
	assert.ErrorIs(t, err, service.ErrRunInProgress)

	_, err = svc.Run(context.Background(), []string{etl.PipelineCare})
	assert.NoError(t, err, "disjoint collections may overlap")

	close(dest.block)
	require.NoError(t, <-done)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.WaitRunning(ctx)
	assert.NoError(t, ctx.Err(), "WaitRunning returns once runs finish")
}

func TestSyncService_HistoryDisabled(t *testing.T) {
	svc := service.NewSyncService(quietEngine(&recordingDest{}), nil, nil, nil)
	_, err := svc.History("", 5)
	assert.Error(t, err)
}

func TestSyncService_Preview(t *testing.T) {
	dest := &recordingDest{}
	svc := service.NewSyncService(quietEngine(dest), etl.DefaultPipelines(writeSources(t)), nil, nil)

	tbl, stats, err := svc.Preview(context.Background(), etl.PipelineDS, 10)

	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, 1, stats.Dropped)
	assert.Empty(t, dest.written)

	_, _, err = svc.Preview(context.Background(), "nope", 1)
	assert.Error(t, err)
}

var _ domain.SyncRunStore = (*storage.RunLogStore)(nil)
