package engine

import "github.com/planvane/planvane/models"

// recomputeExecution rebuilds the derived execution state from the
// pending tasks and the recorded results. It runs on every execution
// update so inconsistencies are self-healing rather than accumulating.
func recomputeExecution(state *models.ProjectState) {
	if state.Execution == nil {
		state.Execution = &models.ExecutionState{Results: map[string]models.AgentResult{}}
	}
	if state.Execution.Results == nil {
		state.Execution.Results = map[string]models.AgentResult{}
	}

	known := map[string]bool{}
	summary := models.ExecutionSummary{}
	var failures []models.ExecutionFailure

	for _, task := range state.PendingTasks {
		if task.Type != models.TaskExecution {
			continue
		}
		known[task.ID] = true
		summary.Total++
		switch task.Status {
		case models.StatusCompleted:
			summary.Completed++
		case models.StatusFailed:
			summary.Failed++
			reason := "execution failed"
			if r, ok := state.Execution.Results[task.ID]; ok && r.Error != "" {
				reason = r.Error
			}
			failures = append(failures, models.ExecutionFailure{TaskID: task.ID, Reason: reason})
		case models.StatusInProgress:
			summary.InProgress++
		}
	}

	// Results only exist for known execution tasks.
	for id := range state.Execution.Results {
		if !known[id] {
			delete(state.Execution.Results, id)
		}
	}

	state.Execution.Summary = summary
	state.Execution.Failures = failures
}

// executionPhase determines the phase after an execution update: all
// tasks completed with no failures completes the project, failures with
// nothing left running is an error, anything else keeps the phase.
func executionPhase(state *models.ProjectState, current models.Phase) models.Phase {
	s := state.Execution.Summary
	if s.Total > 0 && s.Completed == s.Total && s.Failed == 0 {
		return models.PhaseCompleted
	}
	remaining := s.Total - s.Completed - s.Failed
	if s.Failed > 0 && remaining == 0 {
		return models.PhaseError
	}
	return current
}
