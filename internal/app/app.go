// Package app wires the state core together: it loads the local document,
// bootstraps it against the configured replication backends, owns the
// replication coordinators and handles graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/config"
	"github.com/dueskeeper/dueskeeper/internal/logging"
	"github.com/dueskeeper/dueskeeper/internal/persist"
	"github.com/dueskeeper/dueskeeper/internal/replicate"
	"github.com/dueskeeper/dueskeeper/internal/state"
	"github.com/dueskeeper/dueskeeper/internal/store"
)

// flushTimeout bounds the final replication flush on shutdown.
const flushTimeout = 15 * time.Second

// newRemoteClient builds the remote snapshot client from configuration.
// GitHub wins when both backends are configured. Variable for tests.
var newRemoteClient = func(ctx context.Context, cfg *config.Config) (replicate.RemoteClient, error) {
	if cfg.GitHubConfigured() {
		return replicate.NewGitHub(replicate.GitHubConfig{
			Owner:  cfg.GitHubOwner,
			Repo:   cfg.GitHubRepo,
			Path:   cfg.GitHubPath,
			Branch: cfg.GitHubBranch,
			Token:  cfg.GitHubToken,
		}), nil
	}
	return replicate.NewS3(ctx, replicate.S3Config{
		Bucket:       cfg.S3Bucket,
		Key:          cfg.S3Key,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
	})
}

type App struct {
	config *config.Config
	logger logging.Logger

	engine *persist.Engine
	store  *store.Store

	db           *sql.DB
	coordinators []*replicate.Coordinator
}

// NewApp builds the application: local engine, bootstrap against the
// relational and remote backends, and the store with its coordinators.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	engine := persist.NewEngine(cfg.StateFilePath, cfg.LegacyStatePaths, logger)
	engine.MigrateLegacy(ctx)
	doc := engine.Load(ctx)

	app := &App{config: cfg, logger: logger, engine: engine}

	var schedulers []store.Scheduler

	if cfg.DatabaseDSN != "" {
		db, err := replicate.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := replicate.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("db migrations error: %w", err)
		}
		app.db = db

		pg := replicate.NewPostgres(db, cfg.StateID)
		loaded, found, err := pg.Bootstrap(ctx, doc)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("db bootstrap error: %w", err)
		}
		if found {
			// The relational row is authoritative when present.
			doc = loaded
			if err := engine.Write(ctx, doc, "db-bootstrap"); err != nil {
				logger.Warn(ctx, "local write after db bootstrap rejected", "error", err)
			}
		}

		c := replicate.NewCoordinator(pg, logger)
		app.coordinators = append(app.coordinators, c)
		schedulers = append(schedulers, c)
	}

	if cfg.GitHubConfigured() || cfg.S3Configured() {
		client, err := newRemoteClient(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("remote init error: %w", err)
		}
		remote := replicate.NewRemote(client, cfg.RemoteDebounce, logger)

		// Without a relational row to lean on, an empty local document
		// adopts whatever the remote already holds.
		if cfg.DatabaseDSN == "" && doc.Score() == 0 {
			fetched, err := remote.Fetch(ctx)
			switch {
			case errors.Is(err, common.ErrNotFound):
				// nothing published yet
			case err != nil:
				logger.Warn(ctx, "remote bootstrap fetch failed", "error", err)
			default:
				doc = state.Merge(doc, fetched)
				if err := engine.Write(ctx, doc, "remote-bootstrap"); err != nil {
					logger.Warn(ctx, "local write after remote bootstrap rejected", "error", err)
				}
			}
		}

		c := replicate.NewCoordinator(remote, logger)
		app.coordinators = append(app.coordinators, c)
		schedulers = append(schedulers, c)
	}

	app.store = store.New(doc, engine, logger, schedulers...)

	return app, nil
}

// Store returns the canonical state handle.
func (app *App) Store() *store.Store {
	return app.store
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal
// arrives, then flushes pending replication and releases resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")
	app.Shutdown()
}

// Shutdown flushes every coordinator within flushTimeout and closes the
// database handle.
func (app *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for _, c := range app.coordinators {
		if err := c.Flush(ctx); err != nil {
			app.logger.Error(ctx, "replication flush failed", "error", err)
		}
	}

	app.Close()
}

// Close releases held resources without flushing.
func (app *App) Close() {
	if app.db != nil {
		app.db.Close()
		app.db = nil
	}
}
