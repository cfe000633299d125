package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowapi/rowapi/internal/storage"
	"github.com/rowapi/rowapi/pkg/admin"
	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/config"
	"github.com/rowapi/rowapi/pkg/engine"
	"github.com/rowapi/rowapi/pkg/executor"
	"github.com/rowapi/rowapi/pkg/guard"
	"github.com/rowapi/rowapi/pkg/logging"
	"github.com/rowapi/rowapi/pkg/mapper"
	"github.com/rowapi/rowapi/pkg/ratelimit"
	"github.com/rowapi/rowapi/pkg/resolver"
	rstore "github.com/rowapi/rowapi/pkg/store"
)

// App holds the wired components for one server process.
type App struct {
	Server *engine.Server
	Log    *slog.Logger

	res     *resolver.Resolver
	limiter *ratelimit.RouteLimiter
}

// Close releases background resources after the server has stopped.
func (a *App) Close() {
	if a.res != nil {
		a.res.Stop()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
}

// buildApp wires all components. Without a database DSN the process runs on
// the in-memory store, which suits local development and demos.
func buildApp(cfg *config.Config) (*App, error) {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
	})

	var defStore rstore.Store
	var source executor.DataSource
	if cfg.DatabaseURL != "" {
		db, err := rstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening definition store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrating definition store: %w", err)
		}
		defStore = db

		source, err = rstore.OpenReadOnly(cfg.QueryDSN())
		if err != nil {
			return nil, fmt.Errorf("opening query datasource: %w", err)
		}
	} else {
		log.Warn("no databaseUrl configured, using in-memory store")
		defStore = storage.NewMemory()
		source = noSource{}
	}

	g := guard.New(guard.Config{
		MaxRows:         cfg.MaxRows,
		StepTimeout:     time.Duration(cfg.StepTimeoutSeconds) * time.Second,
		PipelineTimeout: time.Duration(cfg.PipelineTimeoutSeconds) * time.Second,
	})

	res := resolver.New(defStore, cfg.CacheTTL(), log)
	exec := executor.New(source, nil, g, log)
	limiter := ratelimit.NewRouteLimiter(cfg.TrustForwardedFor)

	handler := engine.NewHandler(res, exec, mapper.New(g), limiter, engine.NewAuthenticator(cfg.JWTSecret))
	handler.SetLogger(log)
	handler.SetStrictParams(cfg.StrictParams)

	adminAPI := admin.New(defStore,
		admin.WithResolver(res),
		admin.WithRunner(handler),
		admin.WithLogger(log),
	)

	server := engine.NewServer(cfg, handler,
		engine.WithAdminHandler(adminAPI.Handler()),
		engine.WithLogger(log),
	)

	return &App{Server: server, Log: log, res: res, limiter: limiter}, nil
}

// noSource backs the in-memory mode, where query-bearing kinds cannot run.
type noSource struct{}

func (noSource) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, apierr.Execution("no query datasource configured", nil)
}

func (noSource) ReadOnly() bool { return true }

// migrate runs schema migration and exits.
func migrate(cfg *config.Config) error {
	db, err := rstore.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening definition store: %w", err)
	}
	return db.Migrate()
}
