// Package agent implements the backends the dispatcher hands tasks to:
// the LLM planner and the HTTP executor. Backends complete
// asynchronously and re-enter their results through a ResultSink.
package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/planvane/planvane/internal/llm"
	"github.com/planvane/planvane/internal/planner"
	"github.com/planvane/planvane/internal/prompt"
	"github.com/planvane/planvane/models"
)

// ResultSink accepts backend completions. The orchestrator implements
// it by re-entering an agent_result intent.
type ResultSink interface {
	Submit(ctx context.Context, result models.AgentResult)
}

// PlannerBackend drives the LLM planner. A planning task's input carries
// the prompt context assembled by the state machine; the backend renders
// the prompt, invokes the model and validates the response, retrying
// exactly once with a strict-JSON reminder before giving up.
type PlannerBackend struct {
	completer llm.Completer
	prompts   *prompt.Assembler
	sink      ResultSink
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewPlannerBackend creates a planner backend.
func NewPlannerBackend(completer llm.Completer, prompts *prompt.Assembler, sink ResultSink, logger *slog.Logger) *PlannerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlannerBackend{completer: completer, prompts: prompts, sink: sink, logger: logger}
}

// Dispatch starts the planner call in the background and returns
// immediately. The completion is submitted to the sink, which serializes
// it behind the orchestrator's intent queue.
func (b *PlannerBackend) Dispatch(ctx context.Context, task models.AgentTask) error {
	run := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sink.Submit(run, b.plan(run, task))
	}()
	return nil
}

// Wait blocks until all in-flight planner calls have been submitted.
func (b *PlannerBackend) Wait() {
	b.wg.Wait()
}

func (b *PlannerBackend) plan(ctx context.Context, task models.AgentTask) models.AgentResult {
	rendered := b.renderPrompt(task)

	raw, err := b.completer.Complete(ctx, rendered)
	if err != nil {
		return models.AgentResult{TaskID: task.ID, Status: models.ResultFailure, Error: err.Error()}
	}
	if _, err := planner.Parse(raw); err == nil {
		return models.AgentResult{TaskID: task.ID, Status: models.ResultSuccess, Output: raw}
	} else {
		b.logger.Debug("planner output unparseable, retrying with strict reminder", "task", task.ID, "error", err)
	}

	// One retry: the original prompt with a strict JSON reminder.
	raw, err = b.completer.Complete(ctx, rendered+prompt.StrictJSONReminder)
	if err != nil {
		return models.AgentResult{TaskID: task.ID, Status: models.ResultFailure, Error: err.Error()}
	}
	if _, err := planner.Parse(raw); err != nil {
		return models.AgentResult{TaskID: task.ID, Status: models.ResultFailure, Error: err.Error()}
	}
	return models.AgentResult{TaskID: task.ID, Status: models.ResultSuccess, Output: raw}
}

func (b *PlannerBackend) renderPrompt(task models.AgentTask) string {
	v := prompt.Vars{}
	if goal, ok := task.Input["goal"].(string); ok {
		v.Goal = goal
	}
	if note, ok := task.Input["note"].(string); ok {
		v.Note = note
	}
	v.Context = task.Input["context"]
	v.Clarifications = task.Input["clarifications"]

	if mode, _ := task.Input["mode"].(string); mode == "final" {
		return b.prompts.FinalPlan(v)
	}
	return b.prompts.Clarification(v)
}
