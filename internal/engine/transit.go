package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planvane/planvane/internal/planner"
	"github.com/planvane/planvane/internal/readiness"
	"github.com/planvane/planvane/models"
)

// Transit is the pure transition function: it maps the current state and
// one intent to a new state plus the side effects the caller must run.
// The input state is never mutated; every branch ends in applyTransition,
// which installs the phase, bumps the version, stamps updatedAt and
// appends the history record. now is injectable for determinism.
func Transit(state *models.ProjectState, intent Intent, now time.Time) (*models.ProjectState, []Effect) {
	now = now.UTC()

	if create, ok := intent.(CreateProject); ok {
		if state != nil {
			next := state.Clone()
			appendSystemNote(next, "create_project rejected: a project already exists", now)
			applyTransition(next, intent.IntentType(), next.Phase, now)
			return next, nil
		}
		return createProject(create, now)
	}
	if state == nil {
		// The façade rejects every other intent before reaching the
		// machine when no state is loaded.
		return nil, nil
	}

	next := state.Clone()

	switch it := intent.(type) {
	case AddFeature:
		task := synthesizePlanningTask(next, readiness.StageClarification, it.Description, now)
		applyTransition(next, intent.IntentType(), models.PhasePlanning, now)
		return next, []Effect{DispatchAgentTask{Task: task}}

	case RequestClarifications:
		record := newClarification(it.Questions, now)
		next.Clarifications = append(next.Clarifications, record)
		for _, msg := range it.Discussion {
			appendDiscussion(next, models.DiscussionClarification, msg, now, nil)
		}
		applyTransition(next, intent.IntentType(), models.PhaseAwaitingClarification, now)
		return next, nil

	case AnswerClarifications:
		record := next.ClarificationByID(it.ClarificationID)
		if record == nil {
			appendSystemNote(next, fmt.Sprintf("unknown clarification %q", it.ClarificationID), now)
			applyTransition(next, intent.IntentType(), models.PhaseError, now)
			return next, nil
		}
		record.Status = models.ClarificationAnswered
		record.Answers = append([]string(nil), it.Answers...)
		resolvedAt := now
		record.ResolvedAt = &resolvedAt
		task := synthesizePlanningTask(next, readiness.StageClarification, "", now)
		applyTransition(next, intent.IntentType(), models.PhasePlanning, now)
		return next, []Effect{DispatchAgentTask{Task: task}}

	case FinalizeScope:
		for i := range next.Clarifications {
			if next.Clarifications[i].Status != models.ClarificationResolved {
				next.Clarifications[i].Status = models.ClarificationResolved
				if next.Clarifications[i].ResolvedAt == nil {
					resolvedAt := now
					next.Clarifications[i].ResolvedAt = &resolvedAt
				}
			}
		}
		task := synthesizePlanningTask(next, readiness.StageFinal, it.Note, now)
		applyTransition(next, intent.IntentType(), models.PhasePlanning, now)
		return next, []Effect{DispatchAgentTask{Task: task}}

	case ApprovePlan:
		return approvePlan(next, it, now)

	case ApproveExecution:
		return approveExecution(next, it, now)

	case Replan:
		reason := it.Reason
		if reason == "" {
			reason = "replan"
		}
		task := synthesizePlanningTask(next, readiness.StageClarification, reason, now)
		applyTransition(next, intent.IntentType(), models.PhasePlanning, now)
		return next, []Effect{DispatchAgentTask{Task: task}}

	case RunTasks:
		return runTasks(next, it, now)

	case RetryTasks:
		return retryTasks(state, next, it, now)

	case PauseExecution:
		msg := "execution paused"
		if it.Reason != "" {
			msg = "execution paused: " + it.Reason
		}
		appendSystemNote(next, msg, now)
		applyTransition(next, intent.IntentType(), models.PhasePaused, now)
		return next, nil

	case AgentResultIntent:
		return agentResult(state, next, it.Result, now)

	default:
		// Unknown intents are a no-op that still increments the version
		// and appends history, so the rejection is externally observable.
		appendSystemNote(next, fmt.Sprintf("ignoring unknown intent %q", intent.IntentType()), now)
		applyTransition(next, intent.IntentType(), next.Phase, now)
		return next, nil
	}
}

// createProject bootstraps a fresh state in phase idle, then transitions
// it to planning with one already-dispatched clarification task.
func createProject(it CreateProject, now time.Time) (*models.ProjectState, []Effect) {
	settings := models.DefaultSettings()
	if it.Settings != nil {
		settings = *it.Settings
	}
	state := &models.ProjectState{
		ProjectID:      it.ProjectID,
		Phase:          models.PhaseIdle,
		Version:        0,
		UpdatedAt:      now,
		Goal:           it.Goal,
		Context:        it.Context,
		Plans:          map[string]models.PlanSnapshot{},
		PendingTasks:   []models.AgentTask{},
		Approvals:      []models.ApprovalRequest{},
		Clarifications: []models.ClarificationRecord{},
		Discussion:     []models.DiscussionEntry{},
		Settings:       settings,
		History:        []models.TransitionRecord{},
	}
	task := synthesizePlanningTask(state, readiness.StageClarification, "", now)
	applyTransition(state, "create_project", models.PhasePlanning, now)
	return state, []Effect{DispatchAgentTask{Task: task}}
}

func approvePlan(next *models.ProjectState, it ApprovePlan, now time.Time) (*models.ProjectState, []Effect) {
	approval := next.ApprovalByID(it.ApprovalID)
	plan, planExists := next.Plans[it.PlanID]

	switch {
	case approval == nil || approval.Type != models.ApprovalPlan:
		appendSystemNote(next, fmt.Sprintf("no plan approval %q", it.ApprovalID), now)
		applyTransition(next, "approve_plan", models.PhaseError, now)
		return next, nil
	case approval.PlanID != it.PlanID:
		appendSystemNote(next, fmt.Sprintf("approval %q does not cover plan %q", it.ApprovalID, it.PlanID), now)
		applyTransition(next, "approve_plan", models.PhaseError, now)
		return next, nil
	case !planExists:
		appendSystemNote(next, fmt.Sprintf("plan %q not found", it.PlanID), now)
		applyTransition(next, "approve_plan", models.PhaseError, now)
		return next, nil
	}

	next.RemoveApproval(it.ApprovalID)
	next.CurrentPlanID = plan.ID

	var taskIDs []string
	for _, def := range plan.Tasks {
		task := models.AgentTask{
			ID:           uuid.NewString(),
			Type:         models.TaskExecution,
			Status:       models.StatusPending,
			CreatedAt:    now,
			PlanID:       plan.ID,
			DefinitionID: def.ID,
			Input: map[string]any{
				"title":       def.Title,
				"description": def.Description,
				"role":        def.Role,
				"dependsOn":   def.DependsOn,
				"payload":     def.Payload,
			},
		}
		next.PendingTasks = append(next.PendingTasks, task)
		taskIDs = append(taskIDs, task.ID)
	}
	recomputeExecution(next)

	if next.Settings.RequireExecutionApproval {
		gate := newApproval(models.ApprovalExecutionStart, plan.ID, taskIDs, now, map[string]any{
			"planId":    plan.ID,
			"taskCount": len(taskIDs),
		})
		next.Approvals = append(next.Approvals, gate)
		applyTransition(next, "approve_plan", models.PhaseAwaitingExecutionApproval, now)
		return next, []Effect{RequestApproval{Approval: gate}}
	}

	if len(taskIDs) == 0 {
		applyTransition(next, "approve_plan", models.PhaseCompleted, now)
		return next, nil
	}

	var effects []Effect
	for _, id := range taskIDs {
		task := next.TaskByID(id)
		markDispatched(task, now)
		effects = append(effects, DispatchAgentTask{Task: *task})
	}
	recomputeExecution(next)
	applyTransition(next, "approve_plan", models.PhaseExecuting, now)
	return next, effects
}

func approveExecution(next *models.ProjectState, it ApproveExecution, now time.Time) (*models.ProjectState, []Effect) {
	approval := next.ApprovalByID(it.ApprovalID)
	if approval == nil || (approval.Type != models.ApprovalExecutionStart && approval.Type != models.ApprovalExecutionRetry) {
		appendSystemNote(next, fmt.Sprintf("no execution approval %q", it.ApprovalID), now)
		applyTransition(next, "approve_execution", models.PhaseError, now)
		return next, nil
	}
	taskIDs := append([]string(nil), approval.TaskIDs...)
	next.RemoveApproval(approval.ID)

	var effects []Effect
	for _, id := range taskIDs {
		task := next.TaskByID(id)
		if task == nil || task.Type != models.TaskExecution {
			continue
		}
		markDispatched(task, now)
		effects = append(effects, DispatchAgentTask{Task: *task})
	}
	recomputeExecution(next)
	applyTransition(next, "approve_execution", models.PhaseExecuting, now)
	return next, effects
}

func runTasks(next *models.ProjectState, it RunTasks, now time.Time) (*models.ProjectState, []Effect) {
	for _, a := range next.Approvals {
		if a.Type == models.ApprovalExecutionStart || a.Type == models.ApprovalExecutionRetry {
			appendSystemNote(next, "run_tasks rejected: an execution approval is pending", now)
			applyTransition(next, "run_tasks", next.Phase, now)
			return next, nil
		}
	}

	var selected []*models.AgentTask
	if len(it.TaskIDs) > 0 {
		for _, id := range it.TaskIDs {
			task := next.TaskByID(id)
			if task != nil && task.Type == models.TaskExecution && !task.Status.Terminal() {
				selected = append(selected, task)
			}
		}
	} else {
		for i := range next.PendingTasks {
			task := &next.PendingTasks[i]
			if task.Type == models.TaskExecution && task.Status == models.StatusPending {
				selected = append(selected, task)
			}
		}
	}

	var effects []Effect
	for _, task := range selected {
		markDispatched(task, now)
		effects = append(effects, DispatchAgentTask{Task: *task})
	}
	recomputeExecution(next)
	applyTransition(next, "run_tasks", next.Phase, now)
	return next, effects
}

func retryTasks(prev, next *models.ProjectState, it RetryTasks, now time.Time) (*models.ProjectState, []Effect) {
	wanted := map[string]bool{}
	for _, id := range it.TaskIDs {
		wanted[id] = true
	}

	var selected []*models.AgentTask
	for i := range next.PendingTasks {
		task := &next.PendingTasks[i]
		if task.Type != models.TaskExecution || task.Status != models.StatusFailed {
			continue
		}
		if len(wanted) > 0 && !wanted[task.ID] {
			continue
		}
		selected = append(selected, task)
	}
	if len(selected) == 0 {
		// Nothing to retry: the state is returned untouched.
		return prev, nil
	}

	var taskIDs []string
	for _, task := range selected {
		task.Status = models.StatusPending
		if next.Execution != nil {
			delete(next.Execution.Results, task.ID)
		}
		taskIDs = append(taskIDs, task.ID)
	}
	recomputeExecution(next)

	if next.Settings.RequireRetryApproval {
		gate := newApproval(models.ApprovalExecutionRetry, next.CurrentPlanID, taskIDs, now, map[string]any{
			"taskCount": len(taskIDs),
		})
		next.Approvals = append(next.Approvals, gate)
		applyTransition(next, "retry_tasks", models.PhaseAwaitingExecutionApproval, now)
		return next, []Effect{RequestApproval{Approval: gate}}
	}

	var effects []Effect
	for _, id := range taskIDs {
		task := next.TaskByID(id)
		markDispatched(task, now)
		effects = append(effects, DispatchAgentTask{Task: *task})
	}
	recomputeExecution(next)
	applyTransition(next, "retry_tasks", models.PhaseExecuting, now)
	return next, effects
}

func agentResult(prev, next *models.ProjectState, result models.AgentResult, now time.Time) (*models.ProjectState, []Effect) {
	task := next.TaskByID(result.TaskID)
	if task == nil {
		appendSystemNote(next, fmt.Sprintf("result for unknown task %q", result.TaskID), now)
		applyTransition(next, "agent_result", models.PhaseError, now)
		return next, nil
	}
	if task.Status.Terminal() {
		// The result was already applied; feeding it again changes nothing.
		return prev, nil
	}

	if result.Status == models.ResultSuccess {
		task.Status = models.StatusCompleted
	} else {
		task.Status = models.StatusFailed
	}

	if task.Type == models.TaskPlanning {
		return planningResult(next, result, now)
	}
	return executionResult(next, task, result, now)
}

// planningResult routes a planner turn: a failed call poisons the
// project, a single question opens a clarification, a structured plan is
// normalized and put up for approval, and anything else keeps planning
// with a bookkeeping note.
func planningResult(next *models.ProjectState, result models.AgentResult, now time.Time) (*models.ProjectState, []Effect) {
	if result.Status == models.ResultFailure {
		msg := "planning failed"
		if result.Error != "" {
			msg = "planning failed: " + result.Error
		}
		appendSystemNote(next, msg, now)
		applyTransition(next, "agent_result", models.PhaseError, now)
		return next, nil
	}

	output, err := planner.Parse(result.Output)
	if err != nil {
		appendSystemNote(next, "planner output not usable: "+err.Error(), now)
		applyTransition(next, "agent_result", models.PhasePlanning, now)
		return next, nil
	}

	for _, d := range output.Discussion {
		typ := models.DiscussionType(d.Type)
		switch typ {
		case models.DiscussionClarification, models.DiscussionPlan, models.DiscussionExecution, models.DiscussionSystem:
		default:
			typ = models.DiscussionSystem
		}
		appendDiscussion(next, typ, d.Message, now, d.Metadata)
	}

	if len(output.Questions) > 0 {
		record := newClarification(output.Questions, now)
		next.Clarifications = append(next.Clarifications, record)
		appendDiscussion(next, models.DiscussionClarification, output.Questions[0], now, nil)
		applyTransition(next, "agent_result", models.PhaseAwaitingClarification, now)
		return next, nil
	}

	snapshot := NormalizePlan(output.Plan, now)
	if existing, ok := next.Plans[snapshot.ID]; ok {
		// Same content hash: the stored snapshot (and its createdAt) wins.
		snapshot = existing
	} else {
		next.Plans[snapshot.ID] = snapshot
	}
	next.CurrentPlanID = snapshot.ID

	approval := newApproval(models.ApprovalPlan, snapshot.ID, nil, now, map[string]any{
		"planId":    snapshot.ID,
		"taskCount": len(snapshot.Tasks),
	})
	next.Approvals = append(next.Approvals, approval)
	appendDiscussion(next, models.DiscussionPlan, fmt.Sprintf("plan %s proposed with %d tasks", snapshot.ID, len(snapshot.Tasks)), now, nil)
	applyTransition(next, "agent_result", models.PhaseAwaitingApproval, now)
	return next, []Effect{RequestApproval{Approval: approval}}
}

func executionResult(next *models.ProjectState, task *models.AgentTask, result models.AgentResult, now time.Time) (*models.ProjectState, []Effect) {
	if next.Execution == nil {
		next.Execution = &models.ExecutionState{Results: map[string]models.AgentResult{}}
	}
	if next.Execution.Results == nil {
		next.Execution.Results = map[string]models.AgentResult{}
	}
	next.Execution.Results[task.ID] = result
	recomputeExecution(next)

	if result.Status == models.ResultFailure {
		reason := result.Error
		if reason == "" {
			reason = "execution failed"
		}
		appendDiscussion(next, models.DiscussionExecution, fmt.Sprintf("task %s failed: %s", task.ID, reason), now, nil)
	} else {
		appendDiscussion(next, models.DiscussionExecution, fmt.Sprintf("task %s completed", task.ID), now, nil)
	}

	applyTransition(next, "agent_result", executionPhase(next, next.Phase), now)
	return next, nil
}

// synthesizePlanningTask creates a dispatched planning task whose input
// carries the prompt context: goal, structured context, answered
// clarifications, stage, note and the clarification/final mode decision.
func synthesizePlanningTask(state *models.ProjectState, stage readiness.Stage, note string, now time.Time) models.AgentTask {
	pc := readiness.BuildPromptContext(state, stage, note)
	mode := string(readiness.StageClarification)
	if readiness.Ready(state, stage) {
		mode = string(readiness.StageFinal)
	}

	input := map[string]any{
		"stage": string(stage),
		"mode":  mode,
		"goal":  pc.Goal,
	}
	if note != "" {
		input["note"] = note
	}
	if pc.Context != nil {
		input["context"] = pc.Context
	}
	if len(pc.AnsweredClarifications) > 0 {
		input["clarifications"] = pc.AnsweredClarifications
	}

	dispatchedAt := now
	task := models.AgentTask{
		ID:           uuid.NewString(),
		Type:         models.TaskPlanning,
		Status:       models.StatusInProgress,
		Input:        input,
		CreatedAt:    now,
		DispatchedAt: &dispatchedAt,
	}
	state.PendingTasks = append(state.PendingTasks, task)
	return task
}

// markDispatched moves a task into flight. DispatchedAt is only stamped
// the first time; retried tasks keep their original dispatch timestamp.
func markDispatched(task *models.AgentTask, now time.Time) {
	task.Status = models.StatusInProgress
	if task.DispatchedAt == nil {
		dispatchedAt := now
		task.DispatchedAt = &dispatchedAt
	}
}

func newClarification(questions []string, now time.Time) models.ClarificationRecord {
	questions = append([]string(nil), questions...)
	return models.ClarificationRecord{
		ID: DeterministicID("clarification", map[string]any{
			"questions": questions,
			"createdAt": now.Format(time.RFC3339Nano),
		}),
		Questions: questions,
		Status:    models.ClarificationOpen,
		CreatedAt: now,
	}
}

func newApproval(typ models.ApprovalType, planID string, taskIDs []string, now time.Time, details map[string]any) models.ApprovalRequest {
	return models.ApprovalRequest{
		ID: DeterministicID("approval", map[string]any{
			"type":        string(typ),
			"planId":      planID,
			"taskIds":     taskIDs,
			"requestedAt": now.Format(time.RFC3339Nano),
		}),
		Type:        typ,
		RequestedAt: now,
		Details:     details,
		PlanID:      planID,
		TaskIDs:     taskIDs,
	}
}

func appendDiscussion(state *models.ProjectState, typ models.DiscussionType, message string, now time.Time, metadata map[string]any) {
	entry := models.DiscussionEntry{
		Type:      typ,
		Message:   message,
		Timestamp: now,
		Metadata:  metadata,
	}
	entry.ID = DeterministicID("discussion", map[string]any{
		"type":      string(typ),
		"message":   message,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	state.Discussion = append(state.Discussion, entry)
}

func appendSystemNote(state *models.ProjectState, message string, now time.Time) {
	appendDiscussion(state, models.DiscussionSystem, message, now, nil)
}

// applyTransition is the single exit point of every accepted intent: it
// installs the phase, increments the version, stamps updatedAt and
// appends the transition record.
func applyTransition(state *models.ProjectState, intentType string, to models.Phase, now time.Time) {
	from := state.Phase
	state.Phase = to
	state.Version++
	state.UpdatedAt = now
	state.History = append(state.History, models.TransitionRecord{
		Timestamp:  now,
		IntentType: intentType,
		From:       from,
		To:         to,
	})
}
