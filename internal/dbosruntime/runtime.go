// Package dbosruntime owns the DBOS context used to run image publishing as
// durable workflows, and the PostgreSQL handle shared with the publish ledger.
package dbosruntime

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"

	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

// Runtime holds a DBOS context, its publish queue and a database pool.
type Runtime struct {
	dbosContext dbos.DBOSContext
	queue       dbos.WorkflowQueue
	config      Config
	db          *sql.DB
	logger      *slog.Logger
}

// NewRuntime connects to the system database and creates the publish queue.
// Workflows must be registered on Context before Launch.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid DBOS configuration: %w", err)
	}
	logger := log.Component("dbosruntime")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create DBOS context: %w", err)
	}

	queue := dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName, dbos.WithWorkerConcurrency(cfg.Concurrency))

	logger.Info("DBOS runtime initialized",
		"app", cfg.AppName, "queue", cfg.QueueName, "concurrency", cfg.Concurrency)

	return &Runtime{
		dbosContext: dbosCtx,
		queue:       queue,
		config:      cfg,
		db:          db,
		logger:      logger,
	}, nil
}

// Launch starts executing queued workflows.
func (r *Runtime) Launch() error {
	if err := dbos.Launch(r.dbosContext); err != nil {
		return err
	}
	r.logger.Info("DBOS runtime launched", "queue", r.config.QueueName)
	return nil
}

// Shutdown waits up to timeout for running workflows, then closes the pool.
func (r *Runtime) Shutdown(timeout time.Duration) error {
	dbos.Shutdown(r.dbosContext, timeout)
	r.logger.Info("DBOS runtime stopped")
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *Runtime) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Runtime) Context() dbos.DBOSContext { return r.dbosContext }

func (r *Runtime) Queue() dbos.WorkflowQueue { return r.queue }

// DB returns the pool for application tables such as the publish ledger.
func (r *Runtime) DB() *sql.DB { return r.db }

func (r *Runtime) QueueName() string { return r.config.QueueName }

func (r *Runtime) Concurrency() int { return r.config.Concurrency }
