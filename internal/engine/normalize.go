package engine

import (
	"strings"
	"time"

	"github.com/planvane/planvane/internal/planner"
	"github.com/planvane/planvane/models"
)

const defaultRole = "execution"

// NormalizePlan converts an accepted plan draft into a content-addressed
// PlanSnapshot. Unlike the strict wire validator, this pass is tolerant:
// unknown fields were already dropped at decode time, missing optional
// fields stay absent, and a missing mandatory title is filled with an
// "Untitled …" placeholder. The snapshot id hashes the normalized
// content only, so the same plan content always maps to the same id.
func NormalizePlan(draft *planner.PlanDraft, now time.Time) models.PlanSnapshot {
	snapshot := models.PlanSnapshot{
		CreatedAt: now,
		Rationale: strings.TrimSpace(draft.Rationale),
	}

	for _, m := range draft.Roadmap {
		snapshot.Roadmap = append(snapshot.Roadmap, models.Milestone{
			ID:          strings.TrimSpace(m.ID),
			Title:       fallbackTitle(m.Title, "Untitled milestone"),
			Description: strings.TrimSpace(m.Description),
			TargetDate:  strings.TrimSpace(m.TargetDate),
		})
	}

	for _, f := range draft.Features {
		snapshot.Features = append(snapshot.Features, models.Feature{
			ID:           strings.TrimSpace(f.ID),
			Title:        fallbackTitle(f.Title, "Untitled feature"),
			Description:  strings.TrimSpace(f.Description),
			Dependencies: f.Dependencies,
			Owners:       f.Owners,
		})
	}

	for _, t := range draft.Tasks {
		def := models.ExecutionTaskDef{
			ID:          strings.TrimSpace(t.ID),
			Title:       fallbackTitle(t.Title, "Untitled task"),
			Description: strings.TrimSpace(t.Description),
			Role:        strings.TrimSpace(t.Role),
			DependsOn:   t.DependsOn,
			Payload:     t.Payload,
		}
		if def.Role == "" {
			def.Role = defaultRole
		}
		if def.ID == "" {
			def.ID = DeterministicID("task", map[string]any{
				"title":       def.Title,
				"description": def.Description,
				"role":        def.Role,
				"dependsOn":   def.DependsOn,
				"payload":     def.Payload,
			})
		}
		snapshot.Tasks = append(snapshot.Tasks, def)
	}

	snapshot.ID = DeterministicID("plan", map[string]any{
		"roadmap":   snapshot.Roadmap,
		"features":  snapshot.Features,
		"tasks":     snapshot.Tasks,
		"rationale": snapshot.Rationale,
	})
	return snapshot
}

func fallbackTitle(title, fallback string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return fallback
	}
	return title
}
