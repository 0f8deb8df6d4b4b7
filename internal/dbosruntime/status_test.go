package dbosruntime

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorkflowStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := &Runtime{db: db}

	created := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT workflow_uuid, status, name, created_at, updated_at FROM dbos.workflow_status").
		WithArgs("publish-1").
		WillReturnRows(sqlmock.NewRows([]string{"workflow_uuid", "status", "name", "created_at", "updated_at"}).
			AddRow("publish-1", "SUCCESS", "PublishWorkflow", created.UnixMilli(), created.Add(2*time.Second).UnixMilli()))

	info, err := r.GetWorkflowStatus(context.Background(), "publish-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", info.Status)
	assert.Equal(t, created, info.CreatedAt)
	assert.Equal(t, 2*time.Second, info.UpdatedAt.Sub(info.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkflowStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := &Runtime{db: db}

	mock.ExpectQuery("FROM dbos.workflow_status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"workflow_uuid", "status", "name", "created_at", "updated_at"}))

	_, err = r.GetWorkflowStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/db", AppName: "media"}.withDefaults()
	assert.Equal(t, "image-publish", cfg.QueueName)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, DefaultMaxOpenConns, cfg.MaxOpenConns)
	assert.NoError(t, cfg.Validate())

	custom := Config{DatabaseURL: "postgres://localhost/db", AppName: "media", QueueName: "q", Concurrency: 2}.withDefaults()
	assert.Equal(t, "q", custom.QueueName)
	assert.Equal(t, 2, custom.Concurrency)
}

func TestConfigValidate(t *testing.T) {
	err := Config{Concurrency: -1}.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DBOS_SYSTEM_DATABASE_URL")
	assert.ErrorContains(t, err, "app name")
	assert.ErrorContains(t, err, "concurrency")

	_, err = NewRuntime(context.Background(), Config{AppName: "media"})
	assert.ErrorContains(t, err, "DBOS_SYSTEM_DATABASE_URL")
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	r := &Runtime{db: db}
	assert.NoError(t, r.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
