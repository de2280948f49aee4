package models

import (
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dispatched := now
	original := &ProjectState{
		ProjectID: "p1",
		Phase:     PhaseExecuting,
		Version:   2,
		Context:   &ProjectContext{ICP: "SMB", TechStack: []string{"go"}},
		Plans: map[string]PlanSnapshot{
			"plan-1": {ID: "plan-1", Tasks: []ExecutionTaskDef{{ID: "t1", Title: "T", Role: "backend"}}},
		},
		PendingTasks: []AgentTask{
			{ID: "a1", Type: TaskExecution, Status: StatusInProgress, DispatchedAt: &dispatched,
				Input: map[string]any{"title": "T"}},
		},
		Clarifications: []ClarificationRecord{
			{ID: "c1", Questions: []string{"q"}, Status: ClarificationOpen, CreatedAt: now},
		},
		Execution: &ExecutionState{
			Results: map[string]AgentResult{"a1": {TaskID: "a1", Status: ResultSuccess}},
		},
		History: []TransitionRecord{{Timestamp: now, IntentType: "create_project", From: PhaseIdle, To: PhasePlanning}},
	}

	clone := original.Clone()

	clone.Context.ICP = "enterprise"
	clone.Context.TechStack[0] = "rust"
	clone.PendingTasks[0].Status = StatusFailed
	clone.PendingTasks[0].Input["title"] = "changed"
	*clone.PendingTasks[0].DispatchedAt = now.Add(time.Hour)
	clone.Clarifications[0].Questions[0] = "changed"
	clone.Execution.Results["a1"] = AgentResult{TaskID: "a1", Status: ResultFailure}
	clone.History[0].IntentType = "changed"
	delete(clone.Plans, "plan-1")

	if original.Context.ICP != "SMB" || original.Context.TechStack[0] != "go" {
		t.Error("context shared between clone and original")
	}
	if original.PendingTasks[0].Status != StatusInProgress {
		t.Error("task status shared")
	}
	if original.PendingTasks[0].Input["title"] != "T" {
		t.Error("task input shared")
	}
	if !original.PendingTasks[0].DispatchedAt.Equal(dispatched) {
		t.Error("dispatchedAt shared")
	}
	if original.Clarifications[0].Questions[0] != "q" {
		t.Error("clarification questions shared")
	}
	if original.Execution.Results["a1"].Status != ResultSuccess {
		t.Error("execution results shared")
	}
	if original.History[0].IntentType != "create_project" {
		t.Error("history shared")
	}
	if _, ok := original.Plans["plan-1"]; !ok {
		t.Error("plans map shared")
	}
}

func TestCloneNil(t *testing.T) {
	var state *ProjectState
	if state.Clone() != nil {
		t.Fatal("nil clones to nil")
	}
}

func TestTerminalStatus(t *testing.T) {
	for status, want := range map[TaskStatus]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestRemoveApprovalPreservesOrder(t *testing.T) {
	state := &ProjectState{Approvals: []ApprovalRequest{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}}
	state.RemoveApproval("b")
	if len(state.Approvals) != 2 || state.Approvals[0].ID != "a" || state.Approvals[1].ID != "c" {
		t.Fatalf("approvals = %+v", state.Approvals)
	}
	state.RemoveApproval("missing")
	if len(state.Approvals) != 2 {
		t.Fatal("removing an unknown id must be a no-op")
	}
}

func TestValidPhase(t *testing.T) {
	for _, p := range Phases {
		if !ValidPhase(p) {
			t.Errorf("%s should be valid", p)
		}
	}
	if ValidPhase(Phase("warp")) {
		t.Error("unknown phase should be invalid")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.RequireExecutionApproval {
		t.Error("execution approval defaults to off")
	}
	if !s.RequireRetryApproval {
		t.Error("retry approval defaults to on")
	}
}

func TestValidateStruct(t *testing.T) {
	good := AgentTask{ID: "t1", Type: TaskPlanning, Status: StatusPending}
	if err := ValidateStruct(good); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}
	bad := AgentTask{ID: "t1", Type: "warp", Status: StatusPending}
	if err := ValidateStruct(bad); err == nil {
		t.Fatal("invalid task type accepted")
	}
}
