package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"github.com/Mikeyudex/erp-totalmotors/internal/dbosruntime"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

// Runner runs publishing inline or as a durable DBOS workflow.
type Runner struct {
	publisher *Publisher
	runtime   *dbosruntime.Runtime
	logger    *slog.Logger
}

// NewRunner creates a runner. With a runtime the publish workflow is
// registered; registration must happen before the runtime is launched.
func NewRunner(publisher *Publisher, runtime *dbosruntime.Runtime) *Runner {
	r := &Runner{
		publisher: publisher,
		runtime:   runtime,
		logger:    log.Component("publish.runner"),
	}

	if runtime != nil {
		dbos.RegisterWorkflow(runtime.Context(), r.publishWorkflow)
	}

	return r
}

// Durable reports whether RunAsync is available.
func (r *Runner) Durable() bool { return r.runtime != nil }

// Run publishes synchronously under a fresh run id.
func (r *Runner) Run(ctx context.Context, req media.PublishRequest) (*media.PublishResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	return r.publisher.Publish(ctx, uuid.New().String(), req)
}

// RunAsync enqueues a publish workflow and returns its id.
func (r *Runner) RunAsync(ctx context.Context, req media.PublishRequest) (string, error) {
	if r.runtime == nil {
		return "", ErrAsyncUnavailable
	}
	if err := Validate(req); err != nil {
		return "", err
	}

	workflowID := fmt.Sprintf("publish-%s-%s", req.ProductSKU, uuid.New().String())

	handle, err := dbos.RunWorkflow[media.PublishRequest, *media.PublishResult](
		r.runtime.Context(),
		r.publishWorkflow,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.runtime.QueueName()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue publish workflow: %w", err)
	}

	r.logger.Info("publish workflow enqueued", "run_id", handle.GetWorkflowID(), "product_sku", req.ProductSKU, "images", len(req.Images))
	return handle.GetWorkflowID(), nil
}

// Status returns the state of a durable run.
func (r *Runner) Status(ctx context.Context, runID string) (*media.RunStatus, error) {
	if r.runtime == nil {
		return nil, ErrAsyncUnavailable
	}
	info, err := r.runtime.GetWorkflowStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &media.RunStatus{
		RunID:     info.WorkflowUUID,
		Status:    info.Status,
		Name:      info.Name,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}, nil
}

// publishWorkflow is the DBOS workflow; DBOSContext implements context.Context.
func (r *Runner) publishWorkflow(dbosCtx dbos.DBOSContext, req media.PublishRequest) (*media.PublishResult, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return nil, err
	}
	return r.publisher.Publish(dbosCtx, workflowID, req)
}
