// Package models defines the project state aggregate and its entities.
package models

import (
	"time"
)

// Phase represents the lifecycle phase of a project.
type Phase string

const (
	PhaseIdle                      Phase = "idle"
	PhasePlanning                  Phase = "planning"
	PhaseAwaitingClarification     Phase = "awaiting_clarification"
	PhaseAwaitingApproval          Phase = "awaiting_approval"
	PhaseAwaitingExecutionApproval Phase = "awaiting_execution_approval"
	PhaseExecuting                 Phase = "executing"
	PhasePaused                    Phase = "paused"
	PhaseCompleted                 Phase = "completed"
	PhaseError                     Phase = "error"
)

// Phases lists every valid phase value.
var Phases = []Phase{
	PhaseIdle, PhasePlanning, PhaseAwaitingClarification, PhaseAwaitingApproval,
	PhaseAwaitingExecutionApproval, PhaseExecuting, PhasePaused, PhaseCompleted,
	PhaseError,
}

// ValidPhase reports whether p is one of the enumerated phases.
func ValidPhase(p Phase) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// TaskType distinguishes planner work from executor work.
type TaskType string

const (
	TaskPlanning  TaskType = "planning"
	TaskExecution TaskType = "execution"
)

// TaskStatus represents the possible statuses of an agent task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal one.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AgentTask is a unit of work handed to the planner or executor backend.
// Once DispatchedAt is set it never changes, even across retries.
type AgentTask struct {
	ID           string         `json:"id" validate:"required"`
	Type         TaskType       `json:"type" validate:"required,oneof=planning execution"`
	Status       TaskStatus     `json:"status" validate:"required,oneof=pending in_progress completed failed"`
	Input        map[string]any `json:"input,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	DispatchedAt *time.Time     `json:"dispatchedAt,omitempty"`
	PlanID       string         `json:"planId,omitempty"`
	DefinitionID string         `json:"definitionId,omitempty"`
}

// ClarificationStatus tracks the question/answer lifecycle.
type ClarificationStatus string

const (
	ClarificationOpen     ClarificationStatus = "open"
	ClarificationAnswered ClarificationStatus = "answered"
	ClarificationResolved ClarificationStatus = "resolved"
)

// ClarificationRecord is a planner question set awaiting user answers.
// Answers align with Questions by index once the record is answered.
type ClarificationRecord struct {
	ID         string              `json:"id"`
	Questions  []string            `json:"questions"`
	Answers    []string            `json:"answers,omitempty"`
	Status     ClarificationStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	ResolvedAt *time.Time          `json:"resolvedAt,omitempty"`
}

// Answered reports whether the record is answered or resolved and
// carries at least one non-empty answer.
func (c ClarificationRecord) Answered() bool {
	if c.Status != ClarificationAnswered && c.Status != ClarificationResolved {
		return false
	}
	for _, a := range c.Answers {
		if a != "" {
			return true
		}
	}
	return false
}

// Milestone is one roadmap entry of a plan.
type Milestone struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
	TargetDate  string `json:"targetDate,omitempty"`
}

// Feature is one product feature of a plan.
type Feature struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Owners       []string `json:"owners,omitempty"`
}

// ExecutionTaskDef is a plan-level task definition. Role is an open
// string; frontend, backend, ai_orchestration, infrastructure, testing,
// documentation and design are the suggested values.
type ExecutionTaskDef struct {
	ID          string         `json:"id"`
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description,omitempty"`
	Role        string         `json:"role" validate:"required"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// PlanSnapshot is an immutable, content-addressed plan. The ID is a
// stable hash of the normalized content, so identical plans deduplicate.
type PlanSnapshot struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Roadmap   []Milestone        `json:"roadmap"`
	Features  []Feature          `json:"features"`
	Tasks     []ExecutionTaskDef `json:"tasks"`
	Rationale string             `json:"rationale,omitempty"`
}

// ApprovalType identifies what an approval gates.
type ApprovalType string

const (
	ApprovalPlan           ApprovalType = "plan"
	ApprovalExecutionStart ApprovalType = "execution_start"
	ApprovalExecutionRetry ApprovalType = "execution_retry"
)

// ApprovalRequest is a pending user gate. Approvals are consumed exactly
// once; consuming one removes it from the state.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	Type        ApprovalType   `json:"type"`
	RequestedAt time.Time      `json:"requestedAt"`
	Details     map[string]any `json:"details,omitempty"`
	PlanID      string         `json:"planId,omitempty"`
	TaskIDs     []string       `json:"taskIds,omitempty"`
}

// ResultStatus is the outcome of an agent backend call.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)

// AgentResult is the envelope a backend returns for a dispatched task.
type AgentResult struct {
	TaskID    string       `json:"taskId" validate:"required"`
	Status    ResultStatus `json:"status" validate:"required,oneof=success failure"`
	Output    any          `json:"output,omitempty"`
	Artifacts []any        `json:"artifacts,omitempty"`
	Logs      []string     `json:"logs,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ExecutionSummary is the derived execution progress rollup.
type ExecutionSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
}

// ExecutionFailure records one failed execution task and its reason.
type ExecutionFailure struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

// ExecutionState is derived from the pending tasks and results; it is
// never the source of truth for task status.
type ExecutionState struct {
	Results  map[string]AgentResult `json:"results"`
	Summary  ExecutionSummary       `json:"summary"`
	Failures []ExecutionFailure     `json:"failures,omitempty"`
}

// DiscussionType categorizes a discussion entry.
type DiscussionType string

const (
	DiscussionClarification DiscussionType = "clarification"
	DiscussionPlan          DiscussionType = "plan"
	DiscussionExecution     DiscussionType = "execution"
	DiscussionSystem        DiscussionType = "system"
)

// DiscussionEntry is one append-only timeline entry.
type DiscussionEntry struct {
	ID        string         `json:"id"`
	Type      DiscussionType `json:"type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TransitionRecord is one append-only history entry. History length
// equals the state version after the first transition.
type TransitionRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	IntentType string    `json:"intentType"`
	From       Phase     `json:"from"`
	To         Phase     `json:"to"`
}

// ProjectContext holds the structured scope fields gathered up front or
// through clarification.
type ProjectContext struct {
	ICP          string   `json:"icp,omitempty"`
	TechStack    []string `json:"techStack,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
	CoreFeatures []string `json:"coreFeatures,omitempty"`
}

// Settings are the per-project approval gates.
type Settings struct {
	RequireExecutionApproval bool `json:"requireExecutionApproval"`
	RequireRetryApproval     bool `json:"requireRetryApproval"`
}

// DefaultSettings returns the documented defaults: execution starts
// without a gate, retries require one.
func DefaultSettings() Settings {
	return Settings{
		RequireExecutionApproval: false,
		RequireRetryApproval:     true,
	}
}

// ProjectState is the root aggregate. Exactly one lives per store; the
// orchestrator façade is its only writer.
type ProjectState struct {
	ProjectID      string                  `json:"projectId" validate:"required"`
	Phase          Phase                   `json:"phase" validate:"required"`
	Version        int                     `json:"version" validate:"gte=0"`
	UpdatedAt      time.Time               `json:"updatedAt"`
	Goal           string                  `json:"goal,omitempty"`
	Context        *ProjectContext         `json:"context,omitempty"`
	Plans          map[string]PlanSnapshot `json:"plans"`
	CurrentPlanID  string                  `json:"currentPlanId,omitempty"`
	PendingTasks   []AgentTask             `json:"pendingTasks"`
	Approvals      []ApprovalRequest       `json:"approvals"`
	Clarifications []ClarificationRecord   `json:"clarifications"`
	Discussion     []DiscussionEntry       `json:"discussion"`
	Execution      *ExecutionState         `json:"execution,omitempty"`
	Settings       Settings                `json:"settings"`
	History        []TransitionRecord      `json:"history"`
}

// TaskByID returns a pointer into PendingTasks for the given id, or nil.
func (s *ProjectState) TaskByID(id string) *AgentTask {
	for i := range s.PendingTasks {
		if s.PendingTasks[i].ID == id {
			return &s.PendingTasks[i]
		}
	}
	return nil
}

// ClarificationByID returns a pointer into Clarifications, or nil.
func (s *ProjectState) ClarificationByID(id string) *ClarificationRecord {
	for i := range s.Clarifications {
		if s.Clarifications[i].ID == id {
			return &s.Clarifications[i]
		}
	}
	return nil
}

// ApprovalByID returns a pointer into Approvals, or nil.
func (s *ProjectState) ApprovalByID(id string) *ApprovalRequest {
	for i := range s.Approvals {
		if s.Approvals[i].ID == id {
			return &s.Approvals[i]
		}
	}
	return nil
}

// RemoveApproval deletes the approval with the given id, preserving order.
func (s *ProjectState) RemoveApproval(id string) {
	for i := range s.Approvals {
		if s.Approvals[i].ID == id {
			s.Approvals = append(s.Approvals[:i:i], s.Approvals[i+1:]...)
			return
		}
	}
}
