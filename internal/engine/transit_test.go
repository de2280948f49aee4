package engine

import (
	"testing"
	"time"

	"github.com/planvane/planvane/models"
)

var (
	t1 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t1.Add(2 * time.Minute)
	t4 = t1.Add(3 * time.Minute)
	t5 = t1.Add(4 * time.Minute)
)

func fullContext() *models.ProjectContext {
	return &models.ProjectContext{
		ICP:          "SMB",
		TechStack:    []string{"go"},
		Constraints:  []string{"OSS"},
		CoreFeatures: []string{"auth"},
	}
}

func planOutput(taskTitles ...string) map[string]any {
	tasks := make([]any, 0, len(taskTitles))
	for _, title := range taskTitles {
		tasks = append(tasks, map[string]any{"title": title, "role": "backend"})
	}
	return map[string]any{
		"plan": map[string]any{
			"roadmap":  []any{map[string]any{"title": "M1"}},
			"features": []any{map[string]any{"title": "F1"}},
			"tasks":    tasks,
		},
	}
}

func dispatchEffects(t *testing.T, effects []Effect) []DispatchAgentTask {
	t.Helper()
	var out []DispatchAgentTask
	for _, e := range effects {
		if d, ok := e.(DispatchAgentTask); ok {
			out = append(out, d)
		}
	}
	return out
}

func checkInvariants(t *testing.T, state *models.ProjectState) {
	t.Helper()
	if !models.ValidPhase(state.Phase) {
		t.Errorf("phase %q not in enumerated set", state.Phase)
	}
	if len(state.History) != state.Version {
		t.Errorf("history length %d != version %d", len(state.History), state.Version)
	}
	for _, a := range state.Approvals {
		if a.PlanID != "" {
			if _, ok := state.Plans[a.PlanID]; !ok {
				t.Errorf("approval %s references missing plan %s", a.ID, a.PlanID)
			}
		}
	}
	if state.CurrentPlanID != "" {
		if _, ok := state.Plans[state.CurrentPlanID]; !ok {
			t.Errorf("currentPlanId %s missing from plans", state.CurrentPlanID)
		}
	}
	for _, task := range state.PendingTasks {
		if task.Type != models.TaskExecution || !task.Status.Terminal() {
			continue
		}
		if state.Execution == nil {
			t.Fatalf("terminal execution task %s but no execution state", task.ID)
		}
		if _, ok := state.Execution.Results[task.ID]; !ok {
			t.Errorf("terminal execution task %s has no result entry", task.ID)
		}
	}
	if state.Execution != nil {
		total := 0
		for _, task := range state.PendingTasks {
			if task.Type == models.TaskExecution {
				total++
			}
		}
		s := state.Execution.Summary
		if s.Total != total {
			t.Errorf("summary total %d != execution task count %d", s.Total, total)
		}
		if s.Completed+s.Failed+s.InProgress > s.Total {
			t.Errorf("summary counts exceed total: %+v", s)
		}
	}
}

func TestHappyPathSingleTask(t *testing.T) {
	// create_project with full context dispatches a final-mode planning task
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1",
		Goal:      "build X",
		Context:   fullContext(),
	}, t1)

	if state.Phase != models.PhasePlanning {
		t.Fatalf("phase = %s, want planning", state.Phase)
	}
	if state.Version != 1 {
		t.Fatalf("version = %d, want 1", state.Version)
	}
	dispatches := dispatchEffects(t, effects)
	if len(dispatches) != 1 {
		t.Fatalf("got %d dispatch effects, want 1", len(dispatches))
	}
	planTask := dispatches[0].Task
	if planTask.Type != models.TaskPlanning {
		t.Fatalf("dispatched task type = %s, want planning", planTask.Type)
	}
	if planTask.DispatchedAt == nil || !planTask.DispatchedAt.Equal(t1) {
		t.Fatal("planning task should be marked dispatched at t1")
	}
	if mode := planTask.Input["mode"]; mode != "final" {
		t.Fatalf("full coverage should force final mode, got %v", mode)
	}
	checkInvariants(t, state)

	// planner returns a plan
	state, effects = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID,
		Status: models.ResultSuccess,
		Output: planOutput("T1"),
	}}, t2)

	if state.Phase != models.PhaseAwaitingApproval {
		t.Fatalf("phase = %s, want awaiting_approval", state.Phase)
	}
	if len(state.Plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(state.Plans))
	}
	if len(state.Approvals) != 1 || state.Approvals[0].Type != models.ApprovalPlan {
		t.Fatalf("expected one plan approval, got %+v", state.Approvals)
	}
	if len(effects) != 1 {
		t.Fatalf("got %d effects, want 1 request_approval", len(effects))
	}
	if _, ok := effects[0].(RequestApproval); !ok {
		t.Fatalf("effect = %T, want RequestApproval", effects[0])
	}
	checkInvariants(t, state)

	// approve the plan: no execution gate, so tasks dispatch immediately
	approval := state.Approvals[0]
	state, effects = Transit(state, ApprovePlan{ApprovalID: approval.ID, PlanID: approval.PlanID}, t3)

	if state.Phase != models.PhaseExecuting {
		t.Fatalf("phase = %s, want executing", state.Phase)
	}
	if len(state.Approvals) != 0 {
		t.Fatal("approval should be consumed")
	}
	dispatches = dispatchEffects(t, effects)
	if len(dispatches) != 1 {
		t.Fatalf("got %d dispatch effects, want 1", len(dispatches))
	}
	execTask := dispatches[0].Task
	if execTask.Type != models.TaskExecution || execTask.Status != models.StatusInProgress {
		t.Fatalf("exec task should be in flight, got %+v", execTask)
	}
	checkInvariants(t, state)

	// executor reports success
	state, effects = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: execTask.ID,
		Status: models.ResultSuccess,
	}}, t4)

	if state.Phase != models.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", state.Phase)
	}
	if len(effects) != 0 {
		t.Fatalf("unexpected effects: %v", effects)
	}
	s := state.Execution.Summary
	if s.Total != 1 || s.Completed != 1 || s.Failed != 0 || s.InProgress != 0 {
		t.Fatalf("summary = %+v, want {1 1 0 0}", s)
	}
	checkInvariants(t, state)
}

func TestClarificationLoop(t *testing.T) {
	state, effects := Transit(nil, CreateProject{ProjectID: "p1", Goal: "build X"}, t1)
	planTask := dispatchEffects(t, effects)[0].Task
	if planTask.Input["mode"] != "clarification" {
		t.Fatalf("no context: mode should be clarification, got %v", planTask.Input["mode"])
	}

	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID,
		Status: models.ResultSuccess,
		Output: map[string]any{"questions": []any{"Who is the target user?"}},
	}}, t2)

	if state.Phase != models.PhaseAwaitingClarification {
		t.Fatalf("phase = %s, want awaiting_clarification", state.Phase)
	}
	if len(state.Clarifications) != 1 || state.Clarifications[0].Status != models.ClarificationOpen {
		t.Fatalf("expected one open clarification, got %+v", state.Clarifications)
	}
	record := state.Clarifications[0]

	state, effects = Transit(state, AnswerClarifications{
		ClarificationID: record.ID,
		Answers:         []string{"SMB dev teams"},
	}, t3)

	if state.Phase != models.PhasePlanning {
		t.Fatalf("phase = %s, want planning", state.Phase)
	}
	answered := state.ClarificationByID(record.ID)
	if answered.Status != models.ClarificationAnswered || answered.Answers[0] != "SMB dev teams" {
		t.Fatalf("answer not recorded: %+v", answered)
	}
	if answered.ResolvedAt == nil || !answered.ResolvedAt.Equal(t3) {
		t.Fatal("resolvedAt should be t3")
	}
	if len(dispatchEffects(t, effects)) != 1 {
		t.Fatal("answering should dispatch a new planning task")
	}
	checkInvariants(t, state)
}

func TestExecutionApprovalGate(t *testing.T) {
	settings := models.Settings{RequireExecutionApproval: true, RequireRetryApproval: true}
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1", Goal: "build X", Context: fullContext(), Settings: &settings,
	}, t1)
	planTask := dispatchEffects(t, effects)[0].Task

	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID, Status: models.ResultSuccess, Output: planOutput("T1"),
	}}, t2)

	approval := state.Approvals[0]
	state, effects = Transit(state, ApprovePlan{ApprovalID: approval.ID, PlanID: approval.PlanID}, t3)

	if state.Phase != models.PhaseAwaitingExecutionApproval {
		t.Fatalf("phase = %s, want awaiting_execution_approval", state.Phase)
	}
	if len(state.Approvals) != 1 || state.Approvals[0].Type != models.ApprovalExecutionStart {
		t.Fatalf("expected execution_start approval, got %+v", state.Approvals)
	}
	if len(effects) != 1 {
		t.Fatalf("got %d effects, want request_approval only", len(effects))
	}

	// run_tasks is rejected while the gate is pending
	versionBefore := state.Version
	state, effects = Transit(state, RunTasks{}, t4)
	if state.Phase != models.PhaseAwaitingExecutionApproval {
		t.Fatalf("rejected run_tasks must not change phase, got %s", state.Phase)
	}
	if state.Version != versionBefore+1 {
		t.Fatalf("rejection still increments version: %d -> %d", versionBefore, state.Version)
	}
	if len(effects) != 0 {
		t.Fatal("rejected run_tasks must not emit effects")
	}

	gate := state.Approvals[0]
	state, effects = Transit(state, ApproveExecution{ApprovalID: gate.ID}, t5)
	if state.Phase != models.PhaseExecuting {
		t.Fatalf("phase = %s, want executing", state.Phase)
	}
	if len(dispatchEffects(t, effects)) != 1 {
		t.Fatal("approval should dispatch the gated task")
	}
	if len(state.Approvals) != 0 {
		t.Fatal("execution approval should be consumed")
	}
	checkInvariants(t, state)
}

func TestFailedExecutionAndRetry(t *testing.T) {
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1", Goal: "build X", Context: fullContext(),
	}, t1)
	planTask := dispatchEffects(t, effects)[0].Task

	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID, Status: models.ResultSuccess, Output: planOutput("T1", "T2"),
	}}, t2)

	approval := state.Approvals[0]
	state, effects = Transit(state, ApprovePlan{ApprovalID: approval.ID, PlanID: approval.PlanID}, t3)
	dispatches := dispatchEffects(t, effects)
	if len(dispatches) != 2 {
		t.Fatalf("got %d dispatches, want 2", len(dispatches))
	}

	// first task succeeds: still executing
	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: dispatches[0].Task.ID, Status: models.ResultSuccess,
	}}, t4)
	if state.Phase != models.PhaseExecuting {
		t.Fatalf("phase = %s, want executing while one task is in flight", state.Phase)
	}

	// second fails: everything terminal with a failure -> error
	failedID := dispatches[1].Task.ID
	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: failedID, Status: models.ResultFailure, Error: "boom",
	}}, t5)
	if state.Phase != models.PhaseError {
		t.Fatalf("phase = %s, want error", state.Phase)
	}
	if len(state.Execution.Failures) != 1 || state.Execution.Failures[0].Reason != "boom" {
		t.Fatalf("failures = %+v", state.Execution.Failures)
	}
	checkInvariants(t, state)

	// retry with the default retry gate
	state, effects = Transit(state, RetryTasks{}, t5.Add(time.Minute))
	if state.Phase != models.PhaseAwaitingExecutionApproval {
		t.Fatalf("phase = %s, want awaiting_execution_approval", state.Phase)
	}
	if len(state.Approvals) != 1 || state.Approvals[0].Type != models.ApprovalExecutionRetry {
		t.Fatalf("expected execution_retry approval, got %+v", state.Approvals)
	}
	retried := state.TaskByID(failedID)
	if retried.Status != models.StatusPending {
		t.Fatalf("retried task status = %s, want pending", retried.Status)
	}
	if _, ok := state.Execution.Results[failedID]; ok {
		t.Fatal("retried task result should be purged")
	}
	originalDispatch := retried.DispatchedAt

	gate := state.Approvals[0]
	state, effects = Transit(state, ApproveExecution{ApprovalID: gate.ID}, t5.Add(2*time.Minute))
	if state.Phase != models.PhaseExecuting {
		t.Fatalf("phase = %s, want executing", state.Phase)
	}
	if len(dispatchEffects(t, effects)) != 1 {
		t.Fatal("retry approval should dispatch the failed task only")
	}
	redispatched := state.TaskByID(failedID)
	if redispatched.Status != models.StatusInProgress {
		t.Fatalf("redispatched status = %s, want in_progress", redispatched.Status)
	}
	if !redispatched.DispatchedAt.Equal(*originalDispatch) {
		t.Fatal("dispatchedAt must not change once set")
	}
	checkInvariants(t, state)
}

func TestAgentResultIdempotent(t *testing.T) {
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1", Goal: "build X", Context: fullContext(),
	}, t1)
	planTask := dispatchEffects(t, effects)[0].Task
	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID, Status: models.ResultSuccess, Output: planOutput("T1"),
	}}, t2)
	approval := state.Approvals[0]
	state, effects = Transit(state, ApprovePlan{ApprovalID: approval.ID, PlanID: approval.PlanID}, t3)
	execID := dispatchEffects(t, effects)[0].Task.ID

	result := models.AgentResult{TaskID: execID, Status: models.ResultSuccess}
	first, _ := Transit(state, AgentResultIntent{Result: result}, t4)
	second, effects := Transit(first, AgentResultIntent{Result: result}, t5)

	if second != first {
		t.Fatal("replayed terminal result should return the state unchanged")
	}
	if len(effects) != 0 {
		t.Fatal("replayed result must not emit effects")
	}
}

func TestRetryWithNoFailuresIsNoOp(t *testing.T) {
	state, _ := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)
	next, effects := Transit(state, RetryTasks{}, t2)
	if next != state {
		t.Fatal("retry with nothing failed should return the state unchanged")
	}
	if len(effects) != 0 {
		t.Fatal("no effects expected")
	}
}

func TestApprovePlanWithZeroTasksCompletes(t *testing.T) {
	state, _ := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)
	plan := models.PlanSnapshot{ID: "plan-empty", CreatedAt: t1}
	state.Plans[plan.ID] = plan
	state.Approvals = append(state.Approvals, models.ApprovalRequest{
		ID: "approval-x", Type: models.ApprovalPlan, RequestedAt: t1, PlanID: plan.ID,
	})

	next, effects := Transit(state, ApprovePlan{ApprovalID: "approval-x", PlanID: plan.ID}, t2)
	if next.Phase != models.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", next.Phase)
	}
	if len(effects) != 0 {
		t.Fatal("no effects expected for an empty plan")
	}
}

func TestPreconditionFailures(t *testing.T) {
	base, _ := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)

	cases := []struct {
		name   string
		intent Intent
	}{
		{"unknown clarification", AnswerClarifications{ClarificationID: "nope", Answers: []string{"a"}}},
		{"unknown approval", ApprovePlan{ApprovalID: "nope", PlanID: "nope"}},
		{"unknown execution approval", ApproveExecution{ApprovalID: "nope"}},
		{"unknown task result", AgentResultIntent{Result: models.AgentResult{TaskID: "nope", Status: models.ResultSuccess}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, effects := Transit(base, tc.intent, t2)
			if next.Phase != models.PhaseError {
				t.Fatalf("phase = %s, want error", next.Phase)
			}
			if len(effects) != 0 {
				t.Fatal("precondition failures must not emit effects")
			}
			if next.Version != base.Version+1 {
				t.Fatal("version must still increment")
			}
			if len(next.Discussion) == len(base.Discussion) {
				t.Fatal("expected a system discussion entry")
			}
			checkInvariants(t, next)
		})
	}
}

func TestUnusablePlannerOutputKeepsPlanning(t *testing.T) {
	state, effects := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)
	planTask := dispatchEffects(t, effects)[0].Task

	next, _ := Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID,
		Status: models.ResultSuccess,
		Output: "no json here at all",
	}}, t2)
	if next.Phase != models.PhasePlanning {
		t.Fatalf("phase = %s, want planning", next.Phase)
	}
	if len(next.Discussion) == 0 {
		t.Fatal("expected a bookkeeping discussion entry")
	}
}

func TestPlannerFailureIsError(t *testing.T) {
	state, effects := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)
	planTask := dispatchEffects(t, effects)[0].Task

	next, _ := Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID,
		Status: models.ResultFailure,
		Error:  "model unavailable",
	}}, t2)
	if next.Phase != models.PhaseError {
		t.Fatalf("phase = %s, want error", next.Phase)
	}
}

func TestPlanDeduplicatesByContentHash(t *testing.T) {
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1", Goal: "g", Context: fullContext(),
	}, t1)
	planTask := dispatchEffects(t, effects)[0].Task
	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID, Status: models.ResultSuccess, Output: planOutput("T1"),
	}}, t2)
	firstPlanID := state.CurrentPlanID
	firstCreated := state.Plans[firstPlanID].CreatedAt

	// A replan returning identical content maps to the same snapshot.
	state, effects = Transit(state, Replan{}, t3)
	replanTask := dispatchEffects(t, effects)[0].Task
	state, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: replanTask.ID, Status: models.ResultSuccess, Output: planOutput("T1"),
	}}, t4)

	if len(state.Plans) != 1 {
		t.Fatalf("identical content should deduplicate, got %d plans", len(state.Plans))
	}
	if state.CurrentPlanID != firstPlanID {
		t.Fatal("currentPlanId should still point at the deduplicated snapshot")
	}
	if !state.Plans[firstPlanID].CreatedAt.Equal(firstCreated) {
		t.Fatal("existing snapshot must be kept on dedup")
	}
}

func TestPauseAndUnknownIntent(t *testing.T) {
	state, _ := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)

	paused, _ := Transit(state, PauseExecution{Reason: "lunch"}, t2)
	if paused.Phase != models.PhasePaused {
		t.Fatalf("phase = %s, want paused", paused.Phase)
	}

	next, effects := Transit(paused, fakeIntent{}, t3)
	if next.Phase != models.PhasePaused {
		t.Fatal("unknown intent must preserve phase")
	}
	if next.Version != paused.Version+1 {
		t.Fatal("unknown intent still increments version")
	}
	if len(effects) != 0 {
		t.Fatal("unknown intent must not emit effects")
	}
}

type fakeIntent struct{}

func (fakeIntent) IntentType() string { return "warp_core_breach" }

func TestVersionAndHistoryAcrossSequence(t *testing.T) {
	state, effects := Transit(nil, CreateProject{
		ProjectID: "p1", Goal: "g", Context: fullContext(),
	}, t1)
	planTask := dispatchEffects(t, effects)[0].Task

	intents := []Intent{
		AgentResultIntent{Result: models.AgentResult{TaskID: planTask.ID, Status: models.ResultSuccess, Output: planOutput("T1")}},
		AddFeature{Description: "dark mode"},
		Replan{Reason: "scope change"},
		PauseExecution{},
		RequestClarifications{Questions: []string{"Which database?"}},
	}
	now := t2
	for _, intent := range intents {
		prevVersion := state.Version
		state, _ = Transit(state, intent, now)
		if state.Version != prevVersion+1 {
			t.Fatalf("%s: version %d -> %d, want +1", intent.IntentType(), prevVersion, state.Version)
		}
		checkInvariants(t, state)
		now = now.Add(time.Minute)
	}
}

func TestTransitDoesNotMutateInput(t *testing.T) {
	state, effects := Transit(nil, CreateProject{ProjectID: "p1", Goal: "g"}, t1)
	planTask := dispatchEffects(t, effects)[0].Task
	versionBefore := state.Version
	phaseBefore := state.Phase
	tasksBefore := len(state.PendingTasks)

	_, _ = Transit(state, AgentResultIntent{Result: models.AgentResult{
		TaskID: planTask.ID, Status: models.ResultSuccess,
		Output: map[string]any{"questions": []any{"Q?"}},
	}}, t2)

	if state.Version != versionBefore || state.Phase != phaseBefore || len(state.PendingTasks) != tasksBefore {
		t.Fatal("input state was mutated")
	}
	if state.TaskByID(planTask.ID).Status != models.StatusInProgress {
		t.Fatal("input task status changed")
	}
}
