package models

import "time"

// Clone returns a deep copy of the state. The state machine mutates only
// detached copies, so every transition starts from a clone.
func (s *ProjectState) Clone() *ProjectState {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = s.Context.clone()
	out.Execution = s.Execution.clone()

	if s.Plans != nil {
		out.Plans = make(map[string]PlanSnapshot, len(s.Plans))
		for id, p := range s.Plans {
			out.Plans[id] = p.clone()
		}
	}
	if s.PendingTasks != nil {
		out.PendingTasks = make([]AgentTask, len(s.PendingTasks))
		for i, t := range s.PendingTasks {
			out.PendingTasks[i] = t.clone()
		}
	}
	if s.Approvals != nil {
		out.Approvals = make([]ApprovalRequest, len(s.Approvals))
		for i, a := range s.Approvals {
			out.Approvals[i] = a.clone()
		}
	}
	if s.Clarifications != nil {
		out.Clarifications = make([]ClarificationRecord, len(s.Clarifications))
		for i, c := range s.Clarifications {
			out.Clarifications[i] = c.clone()
		}
	}
	if s.Discussion != nil {
		out.Discussion = make([]DiscussionEntry, len(s.Discussion))
		for i, d := range s.Discussion {
			out.Discussion[i] = d.clone()
		}
	}
	if s.History != nil {
		out.History = append([]TransitionRecord(nil), s.History...)
	}
	return &out
}

func (c *ProjectContext) clone() *ProjectContext {
	if c == nil {
		return nil
	}
	out := *c
	out.TechStack = append([]string(nil), c.TechStack...)
	out.Constraints = append([]string(nil), c.Constraints...)
	out.CoreFeatures = append([]string(nil), c.CoreFeatures...)
	return &out
}

func (t AgentTask) clone() AgentTask {
	out := t
	out.Input = cloneMap(t.Input)
	out.DispatchedAt = cloneTime(t.DispatchedAt)
	return out
}

func (c ClarificationRecord) clone() ClarificationRecord {
	out := c
	out.Questions = append([]string(nil), c.Questions...)
	out.Answers = append([]string(nil), c.Answers...)
	out.ResolvedAt = cloneTime(c.ResolvedAt)
	return out
}

func (p PlanSnapshot) clone() PlanSnapshot {
	out := p
	out.Roadmap = append([]Milestone(nil), p.Roadmap...)
	if p.Features != nil {
		out.Features = make([]Feature, len(p.Features))
		for i, f := range p.Features {
			f.Dependencies = append([]string(nil), f.Dependencies...)
			f.Owners = append([]string(nil), f.Owners...)
			out.Features[i] = f
		}
	}
	if p.Tasks != nil {
		out.Tasks = make([]ExecutionTaskDef, len(p.Tasks))
		for i, d := range p.Tasks {
			d.DependsOn = append([]string(nil), d.DependsOn...)
			d.Payload = cloneMap(d.Payload)
			out.Tasks[i] = d
		}
	}
	return out
}

func (a ApprovalRequest) clone() ApprovalRequest {
	out := a
	out.Details = cloneMap(a.Details)
	out.TaskIDs = append([]string(nil), a.TaskIDs...)
	return out
}

func (d DiscussionEntry) clone() DiscussionEntry {
	out := d
	out.Metadata = cloneMap(d.Metadata)
	return out
}

func (e *ExecutionState) clone() *ExecutionState {
	if e == nil {
		return nil
	}
	out := *e
	if e.Results != nil {
		out.Results = make(map[string]AgentResult, len(e.Results))
		for id, r := range e.Results {
			out.Results[id] = r
		}
	}
	out.Failures = append([]ExecutionFailure(nil), e.Failures...)
	return &out
}

// cloneMap copies one level of an opaque payload map. Nested values are
// shared; payloads are treated as immutable once stored.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
