// Package orchestrator is the façade that owns the project state: it
// loads it, serializes intent handling, persists each transition before
// its effects run, and exposes the lifecycle API.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/planvane/planvane/internal/dispatch"
	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
	"github.com/planvane/planvane/store"
)

// ErrNoProject is returned when an intent other than create_project
// arrives before any state exists.
var ErrNoProject = errors.New("no project loaded; create one first")

// Result is the outcome of one handled intent.
type Result struct {
	State   *models.ProjectState
	Effects []engine.Effect
}

// Orchestrator is the single writer of the canonical state. Intents are
// serialized: at most one is in flight, concurrent calls queue on the
// mutex.
type Orchestrator struct {
	mu         sync.Mutex
	store      store.ProjectStore
	dispatcher *dispatch.Dispatcher
	state      *models.ProjectState
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator over the given store and dispatcher.
func New(st store.ProjectStore, dispatcher *dispatch.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize loads the persisted state, if any. Returns nil on first run.
func (o *Orchestrator) Initialize(ctx context.Context) (*models.ProjectState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	o.state = state
	if state != nil {
		o.logger.Debug("state loaded", "project", state.ProjectID, "phase", state.Phase, "version", state.Version)
	}
	return state.Clone(), nil
}

// State returns a detached copy of the current in-memory snapshot, or
// nil when no project is loaded.
func (o *Orchestrator) State() *models.ProjectState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// HandleIntent is the single entry point: compute the transition, write
// the new state durably, then execute the effects in order. A
// persistence failure means the intent was not applied; the in-memory
// state stays at the pre-call snapshot.
func (o *Orchestrator) HandleIntent(ctx context.Context, intent engine.Intent) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handleLocked(ctx, intent)
}

func (o *Orchestrator) handleLocked(ctx context.Context, intent engine.Intent) (*Result, error) {
	if o.state == nil {
		if _, ok := intent.(engine.CreateProject); !ok {
			return nil, ErrNoProject
		}
	}

	next, effects := engine.Transit(o.state, intent, o.now())
	if next == nil {
		return nil, ErrNoProject
	}

	// Durability before side effects: only a persisted transition may
	// reach the collaborators.
	if next != o.state {
		if err := o.store.Save(next); err != nil {
			o.logger.Error("persist failed; intent not applied", "intent", intent.IntentType(), "error", err)
			return nil, err
		}
		o.state = next
	}

	o.logger.Info("intent handled",
		"intent", intent.IntentType(),
		"phase", o.state.Phase,
		"version", o.state.Version,
		"effects", len(effects))

	if err := o.dispatcher.Run(ctx, effects); err != nil {
		// Effect failures never retro-mutate state. For a failed task
		// dispatch, feed an internal failure result so the task does not
		// hang in flight forever.
		o.logger.Warn("effect delivery failed", "intent", intent.IntentType(), "error", err)
		o.failUndeliveredTasks(ctx, effects, err)
	}

	return &Result{State: o.state.Clone(), Effects: effects}, nil
}

// failUndeliveredTasks re-enters a failure agent_result for every task
// dispatch in the effect list that has not reached a terminal status. A
// backend that did receive its task before the batch failed may still
// report later; that result lands on a terminal task and is ignored.
func (o *Orchestrator) failUndeliveredTasks(ctx context.Context, effects []engine.Effect, cause error) {
	for _, effect := range effects {
		dispatchEffect, ok := effect.(engine.DispatchAgentTask)
		if !ok {
			continue
		}
		task := o.state.TaskByID(dispatchEffect.Task.ID)
		if task == nil || task.Status.Terminal() {
			continue
		}
		failure := engine.AgentResultIntent{Result: models.AgentResult{
			TaskID: dispatchEffect.Task.ID,
			Status: models.ResultFailure,
			Error:  "dispatch failed: " + cause.Error(),
		}}
		if _, err := o.handleLocked(ctx, failure); err != nil {
			o.logger.Error("failed to record dispatch failure", "task", dispatchEffect.Task.ID, "error", err)
		}
	}
}

// Submit delivers a backend completion as an agent_result intent. It
// satisfies the agent.ResultSink interface so asynchronous backends can
// re-enter the machine.
func (o *Orchestrator) Submit(ctx context.Context, result models.AgentResult) {
	if _, err := o.HandleIntent(ctx, engine.AgentResultIntent{Result: result}); err != nil {
		o.logger.Error("submit agent result", "task", result.TaskID, "error", err)
	}
}
