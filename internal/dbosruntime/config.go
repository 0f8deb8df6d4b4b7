package dbosruntime

import (
	"errors"
	"fmt"
)

// Defaults applied by NewRuntime.
const (
	DefaultQueueName    = "image-publish"
	DefaultConcurrency  = 4
	DefaultMaxOpenConns = 8
)

// Config describes the DBOS system database and the publish queue.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string, shared by DBOS state
	// and the publish ledger.
	DatabaseURL string

	// AppName identifies this binary in DBOS.
	AppName string

	// QueueName of the publish workflow queue.
	QueueName string

	// Concurrency is the number of publish workflows run at once.
	Concurrency int

	// ApplicationVersion lets library callers and the worker recover each
	// other's workflows; DBOS uses the binary hash when empty.
	ApplicationVersion string

	// MaxOpenConns bounds the pool used for ledger and status queries.
	MaxOpenConns int
}

// withDefaults returns c with empty optional fields filled in.
func (c Config) withDefaults() Config {
	if c.QueueName == "" {
		c.QueueName = DefaultQueueName
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	return c
}

// Validate reports every missing or invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DBOS_SYSTEM_DATABASE_URL is required"))
	}
	if c.AppName == "" {
		errs = append(errs, errors.New("app name is required"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	return errors.Join(errs...)
}
