package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"sheetsync/internal/config"
	"sheetsync/internal/dbclient"
	"sheetsync/internal/etl"
	_ "sheetsync/internal/etl/sources" // register http(s) and file sources
	"sheetsync/internal/logging"
	"sheetsync/internal/service"
	"sheetsync/internal/storage"
)

// Needs selects which long-lived resources Startup acquires.
type Needs struct {
	Sink    bool // connect to Mongo
	History bool // open the run-history database
}

// App owns the process's long-lived resources and the services built on them.
type App struct {
	cfg     *config.Config
	logs    io.Closer
	mongo   *dbclient.Mongo
	history *storage.DB
	sync    *service.SyncService
}

// New creates an App for cfg and configures logging.
func New(cfg *config.Config) *App {
	logs := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return &App{cfg: cfg, logs: logs}
}

// Startup acquires what needs asks for and wires the sync service. Resources
// acquired before a failure are released by Shutdown.
func (a *App) Startup(ctx context.Context, needs Needs) error {
	engine := &etl.Engine{
		Gate:         a.cfg.Gate(),
		Concurrent:   a.cfg.Sync.Concurrent,
		FetchTimeout: a.cfg.Sync.FetchTimeout,
		Log:          log.StandardLogger(),
	}

	if needs.Sink {
		if err := a.cfg.RequireSink(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		m, err := dbclient.Connect(ctx, a.cfg.Mongo.URI, a.cfg.Mongo.Database, a.cfg.Mongo.ConnectTimeout)
		if err != nil {
			return err
		}
		a.mongo = m
		engine.Dest = &etl.ReplaceWriter{Store: m}
	}

	var runs *storage.RunLogStore
	if needs.History && a.cfg.History.Enabled {
		db, err := storage.Open(a.cfg.History.Driver, a.cfg.History.DSN)
		if err != nil {
			if !needs.Sink {
				return fmt.Errorf("open run history: %w", err)
			}
			// A run still proceeds without history.
			log.WithError(err).Warn("run history unavailable")
		} else {
			a.history = db
			runs = storage.NewRunLogStore(db)
			log.WithField("driver", db.Driver()).Debug("run history opened")
		}
	}

	pipelines := etl.DefaultPipelines(a.cfg.Sources)
	if runs != nil {
		a.sync = service.NewSyncService(engine, pipelines, runs, &service.LogEmitter{})
	} else {
		a.sync = service.NewSyncService(engine, pipelines, nil, &service.LogEmitter{})
	}
	a.sync.SetTimeout(a.cfg.Sync.Timeout)
	return nil
}

// Sync returns the sync service. Only valid after Startup.
func (a *App) Sync() *service.SyncService { return a.sync }

// Shutdown waits for in-flight runs and releases every resource, on all exit paths.
func (a *App) Shutdown(ctx context.Context) {
	if a.sync != nil {
		a.sync.WaitRunning(ctx)
	}
	if a.mongo != nil {
		if err := a.mongo.Close(); err != nil {
			log.WithError(err).Warn("close mongo")
		}
		a.mongo = nil
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.WithError(err).Warn("close run history")
		}
		a.history = nil
	}
	if a.logs != nil {
		a.logs.Close()
	}
}
