package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

type recordingBackend struct {
	name string
	log  *[]string
	err  error
}

func (b *recordingBackend) Dispatch(_ context.Context, task models.AgentTask) error {
	*b.log = append(*b.log, b.name+":"+task.ID)
	return b.err
}

type recordingSurface struct {
	log *[]string
}

func (s *recordingSurface) NotifyApproval(_ context.Context, approval models.ApprovalRequest) error {
	*s.log = append(*s.log, "approval:"+approval.ID)
	return nil
}

func TestEffectsRunInOrderAndRoute(t *testing.T) {
	var log []string
	d := New(
		&recordingBackend{name: "planner", log: &log},
		&recordingBackend{name: "executor", log: &log},
		&recordingSurface{log: &log},
		nil,
	)

	effects := []engine.Effect{
		engine.RequestApproval{Approval: models.ApprovalRequest{ID: "a1"}},
		engine.DispatchAgentTask{Task: models.AgentTask{ID: "t1", Type: models.TaskPlanning}},
		engine.DispatchAgentTask{Task: models.AgentTask{ID: "t2", Type: models.TaskExecution}},
	}
	if err := d.Run(context.Background(), effects); err != nil {
		t.Fatal(err)
	}

	want := []string{"approval:a1", "planner:t1", "executor:t2"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s (order must be preserved)", i, log[i], want[i])
		}
	}
}

func TestFirstFailureStopsTheRun(t *testing.T) {
	var log []string
	boom := errors.New("backend down")
	d := New(
		&recordingBackend{name: "planner", log: &log},
		&recordingBackend{name: "executor", log: &log, err: boom},
		&recordingSurface{log: &log},
		nil,
	)

	effects := []engine.Effect{
		engine.DispatchAgentTask{Task: models.AgentTask{ID: "t1", Type: models.TaskExecution}},
		engine.DispatchAgentTask{Task: models.AgentTask{ID: "t2", Type: models.TaskExecution}},
	}
	err := d.Run(context.Background(), effects)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped backend error", err)
	}
	if len(log) != 1 {
		t.Fatalf("run must stop at the first failure, log = %v", log)
	}
}

func TestNilCollaboratorsAreSkipped(t *testing.T) {
	d := New(nil, nil, nil, nil)
	effects := []engine.Effect{
		engine.DispatchAgentTask{Task: models.AgentTask{ID: "t1", Type: models.TaskPlanning}},
		engine.RequestApproval{Approval: models.ApprovalRequest{ID: "a1"}},
	}
	if err := d.Run(context.Background(), effects); err != nil {
		t.Fatalf("nil collaborators should be skipped, got %v", err)
	}
}
