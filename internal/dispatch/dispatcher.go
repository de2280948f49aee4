// Package dispatch executes the effect list produced by the state
// machine against the external collaborators.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

// AgentBackend hands a task to an external agent. Implementations are
// free to complete asynchronously; completions come back to the
// orchestrator as agent_result intents.
type AgentBackend interface {
	Dispatch(ctx context.Context, task models.AgentTask) error
}

// ApprovalSurface notifies the user-facing surface of a pending approval.
type ApprovalSurface interface {
	NotifyApproval(ctx context.Context, approval models.ApprovalRequest) error
}

// Dispatcher routes effects: planning tasks go to the planner backend,
// execution tasks to the executor, approvals to the approval surface.
type Dispatcher struct {
	planner   AgentBackend
	executor  AgentBackend
	approvals ApprovalSurface
	logger    *slog.Logger
}

// New creates a dispatcher. Any collaborator may be nil, in which case
// effects targeting it are logged and skipped.
func New(planner, executor AgentBackend, approvals ApprovalSurface, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{planner: planner, executor: executor, approvals: approvals, logger: logger}
}

// Run executes effects strictly in list order, awaiting each before the
// next, so causal ordering is preserved (an approval is surfaced before
// any later dispatch). The first failure stops the run and is returned;
// delivery failures never retro-mutate state.
func (d *Dispatcher) Run(ctx context.Context, effects []engine.Effect) error {
	for _, effect := range effects {
		if err := d.runOne(ctx, effect); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) runOne(ctx context.Context, effect engine.Effect) error {
	switch e := effect.(type) {
	case engine.DispatchAgentTask:
		backend := d.executor
		if e.Task.Type == models.TaskPlanning {
			backend = d.planner
		}
		if backend == nil {
			d.logger.Warn("no backend for task", "task", e.Task.ID, "type", e.Task.Type)
			return nil
		}
		d.logger.Debug("dispatching task", "task", e.Task.ID, "type", e.Task.Type)
		if err := backend.Dispatch(ctx, e.Task); err != nil {
			return fmt.Errorf("dispatch task %s: %w", e.Task.ID, err)
		}
		return nil

	case engine.RequestApproval:
		if d.approvals == nil {
			d.logger.Warn("no approval surface", "approval", e.Approval.ID)
			return nil
		}
		d.logger.Debug("requesting approval", "approval", e.Approval.ID, "type", e.Approval.Type)
		if err := d.approvals.NotifyApproval(ctx, e.Approval); err != nil {
			return fmt.Errorf("notify approval %s: %w", e.Approval.ID, err)
		}
		return nil

	default:
		d.logger.Warn("unknown effect", "type", effect.EffectType())
		return nil
	}
}
