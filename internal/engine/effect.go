package engine

import "github.com/planvane/planvane/models"

// Effect is a side-effect request produced by a transition. Effects are
// executed in list order after the new state has been persisted.
type Effect interface {
	EffectType() string
}

// DispatchAgentTask asks the dispatcher to hand a task to the planner or
// executor backend.
type DispatchAgentTask struct {
	Task models.AgentTask
}

func (DispatchAgentTask) EffectType() string { return "dispatch_agent_task" }

// RequestApproval asks the approval surface to show a pending approval.
type RequestApproval struct {
	Approval models.ApprovalRequest
}

func (RequestApproval) EffectType() string { return "request_approval" }
