// Package app wires the engine's ambient stack and core subsystems into a
// single set of plain Go values for an embedding process to drive. It does
// not start a transport listener; that is a separate concern layered on
// top of these values.
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/eventbus"
	"github.com/corewire/routeforge/internal/executor"
	"github.com/corewire/routeforge/internal/platform/database"
	"github.com/corewire/routeforge/internal/platform/migrations"
	"github.com/corewire/routeforge/internal/registry"
	"github.com/corewire/routeforge/internal/routestore"
	"github.com/corewire/routeforge/internal/saga"
	"github.com/corewire/routeforge/pkg/config"
	"github.com/corewire/routeforge/pkg/logger"
)

// App holds every wired subsystem an embedding process needs to deploy and
// run routes.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *sql.DB
	Compiler *compiler.Compiler
	Store    *routestore.Store
	Registry *registry.Registry
	Saga     *saga.Coordinator
	Events   *eventbus.Bus
	Executor *executor.Executor
}

// New loads configuration, opens the database, applies the embedded
// relational migrations, and constructs RouteStore, RouteRegistry,
// SagaCoordinator, EventBus, and Executor, wiring them together and
// triggering RouteRegistry's startup reload.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Logging)

	db, err := database.Open(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	database.Configure(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	comp := compiler.New(cfg.Routes.AllowedURISchemes, cfg.Routes.AllowedHTTPHosts)
	store := routestore.New(db, cfg.Routes.SchemaVersion, log)
	reg := registry.New(comp, store, log)

	accounts := saga.NewAccountStore(db)
	coordinator := saga.New(accounts, log)

	events := eventbus.New(eventbus.Config{
		HeartbeatInterval:     millis(cfg.SSE.HeartbeatIntervalMs),
		HistoryMax:            cfg.SSE.ActivityMaxHistory,
		MaxEmittersPerProcess: cfg.SSE.ActivityMaxEmittersPerProcess,
		RetentionInterval:     millis(cfg.SSE.ActivityRetentionMs),
	}, log)
	events.Start()

	exec := executor.New(log, events,
		executor.WithSagaCoordinator(coordinator),
		executor.WithRouteInvoker(reg),
	)
	reg.SetExecutor(exec)

	if err := reg.Reload(ctx); err != nil {
		log.WithError(err).Warn("startup reload encountered an error")
	}

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Compiler: comp,
		Store:    store,
		Registry: reg,
		Saga:     coordinator,
		Events:   events,
		Executor: exec,
	}, nil
}

// Close releases the event bus loop and the database handle.
func (a *App) Close() {
	a.Events.Close()
	_ = a.DB.Close()
}

func millis(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
