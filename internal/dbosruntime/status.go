package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrWorkflowNotFound is returned for unknown workflow ids.
var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowStatusInfo represents the status of a workflow
type WorkflowStatusInfo struct {
	WorkflowUUID string    `json:"workflow_id"`
	Status       string    `json:"status"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetWorkflowStatus retrieves the status of a workflow from the DBOS status table
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	return workflowStatus(ctx, r.db, workflowUUID)
}

func workflowStatus(ctx context.Context, db *sql.DB, workflowUUID string) (*WorkflowStatusInfo, error) {
	query := `
		SELECT workflow_uuid, status, name, created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var info WorkflowStatusInfo
	var createdAt, updatedAt int64
	err := db.QueryRowContext(ctx, query, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}

	// DBOS stores epoch milliseconds.
	info.CreatedAt = time.UnixMilli(createdAt).UTC()
	info.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &info, nil
}
