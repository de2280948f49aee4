package engine

import "github.com/planvane/planvane/models"

// Intent is a typed message asking the orchestrator to advance state.
// The concrete types below form the full set the machine understands;
// anything else is a version-incrementing no-op.
type Intent interface {
	IntentType() string
}

// CreateProject bootstraps a fresh project. Only valid when no state is
// loaded.
type CreateProject struct {
	ProjectID string
	Goal      string
	Context   *models.ProjectContext
	Settings  *models.Settings
}

func (CreateProject) IntentType() string { return "create_project" }

// AddFeature re-enters planning with a feature description note.
type AddFeature struct {
	Description string
}

func (AddFeature) IntentType() string { return "add_feature" }

// RequestClarifications opens a clarification record out-of-band.
type RequestClarifications struct {
	Questions  []string
	Discussion []string
}

func (RequestClarifications) IntentType() string { return "request_clarifications" }

// AnswerClarifications records user answers for an open clarification.
type AnswerClarifications struct {
	ClarificationID string
	Answers         []string
}

func (AnswerClarifications) IntentType() string { return "answer_clarifications" }

// FinalizeScope resolves all outstanding clarifications and requests a
// final plan.
type FinalizeScope struct {
	Note string
}

func (FinalizeScope) IntentType() string { return "finalize_scope" }

// ApprovePlan consumes a plan approval and adopts the plan.
type ApprovePlan struct {
	ApprovalID string
	PlanID     string
}

func (ApprovePlan) IntentType() string { return "approve_plan" }

// ApproveExecution consumes an execution_start or execution_retry
// approval and dispatches its tasks.
type ApproveExecution struct {
	ApprovalID string
}

func (ApproveExecution) IntentType() string { return "approve_execution" }

// Replan re-enters planning, optionally with a reason.
type Replan struct {
	Reason string
}

func (Replan) IntentType() string { return "replan" }

// RunTasks dispatches pending execution tasks.
type RunTasks struct {
	TaskIDs []string
}

func (RunTasks) IntentType() string { return "run_tasks" }

// RetryTasks resets failed execution tasks for another run.
type RetryTasks struct {
	TaskIDs []string
}

func (RetryTasks) IntentType() string { return "retry_tasks" }

// PauseExecution moves the project to the paused phase.
type PauseExecution struct {
	Reason string
}

func (PauseExecution) IntentType() string { return "pause_execution" }

// AgentResultIntent re-enters a backend completion into the machine.
// This is the only channel by which external completions come back.
type AgentResultIntent struct {
	Result models.AgentResult
}

func (AgentResultIntent) IntentType() string { return "agent_result" }
