package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/dukex/flowgate/pkg/log"
	"github.com/dukex/flowgate/pkg/workflow"
)

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	machine  *workflow.Machine
	gate     *approval.Gate
	eventBus eventbus.EventBus
}

func NewWorkerManager(
	id string,
	machine *workflow.Machine,
	gate *approval.Gate,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "flowgate-worker", "worker_id", id),
		machine:  machine,
		gate:     gate,
		eventBus: eventBus,
	}
}

// Subscribe registers the handlers and starts consuming events.
func (w *WorkerManager) Subscribe(ctx context.Context) error {
	err := w.eventBus.Handle(events.RunStartedEvent, w.handleRunStarted)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.RunResumedEvent, w.handleRunResumed)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ApprovalDecidedEvent, w.handleApprovalDecided)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	return nil
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	if err := w.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleRunStarted(ctx context.Context, event any) error {
	startedEvent, ok := event.(*events.RunStarted)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunStarted")

		return nil
	}

	return w.advance(ctx, startedEvent.BaseEvent)
}

func (w *WorkerManager) handleRunResumed(ctx context.Context, event any) error {
	resumedEvent, ok := event.(*events.RunResumed)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunResumed")

		return nil
	}

	return w.advance(ctx, resumedEvent.BaseEvent)
}

// advance drives the run until it pauses or ends. A busy run is retried through
// redelivery; a run that already left the running status needs nothing.
func (w *WorkerManager) advance(ctx context.Context, event events.BaseEvent) error {
	logger := w.logger.With(
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"event_id", event.ID,
	)
	ctx = log.WithContext(ctx, logger)

	logger.InfoContext(ctx, "Advancing run", "event_type", event.Type)

	result, err := w.machine.Advance(ctx, event.ExecutionID)

	switch {
	case errors.Is(err, workflow.ErrRunNotRunning):
		logger.DebugContext(ctx, "Run is not running, nothing to advance")

		return nil
	case err != nil:
		logger.ErrorContext(ctx, "Failed to advance run", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Run advanced", "status", result.Status)

	return nil
}

func (w *WorkerManager) handleApprovalDecided(ctx context.Context, event any) error {
	decidedEvent, ok := event.(*events.ApprovalDecided)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ApprovalDecided")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", decidedEvent.WorkflowID,
		"execution_id", decidedEvent.ExecutionID,
		"approval_id", decidedEvent.ApprovalID,
	)

	record, err := w.gate.GetResumeData(ctx, decidedEvent.ApprovalID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load decided approval", "error", err)

		if errors.Is(err, approval.ErrNotFound) {
			return nil
		}

		return err
	}

	status, err := w.machine.Resume(ctx, record.ExecutionID, record)

	switch {
	case errors.Is(err, workflow.ErrRunNotWaiting), errors.Is(err, workflow.ErrApprovalMismatch):
		logger.DebugContext(ctx, "Run is not paused on this approval, skipping resume", "reason", err)

		return nil
	case err != nil:
		logger.ErrorContext(ctx, "Failed to resume run", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Run resumed", "status", status)

	return nil
}
