// Package readiness decides whether the planner should be asked for
// clarification or for a final plan, based on coverage of the required
// scope fields.
package readiness

import (
	"strings"

	"github.com/planvane/planvane/models"
)

// Stage names the planning stage a task was synthesized for.
type Stage string

const (
	StageClarification Stage = "clarification"
	StageFinal         Stage = "final"
)

// Field names one of the required coverage dimensions.
type Field string

const (
	FieldGoal         Field = "goal"
	FieldICP          Field = "icp"
	FieldTechStack    Field = "techStack"
	FieldConstraints  Field = "constraints"
	FieldCoreFeatures Field = "coreFeatures"
)

// RequiredFields is the coverage needed before final planning.
var RequiredFields = []Field{FieldGoal, FieldICP, FieldTechStack, FieldConstraints, FieldCoreFeatures}

// keywords maps each non-goal field to the case-insensitive markers that
// let an answered clarification stand in for the structured field.
var keywords = map[Field][]string{
	FieldICP:          {"icp", "customer", "user", "audience", "target"},
	FieldTechStack:    {"tech", "stack", "technology", "framework", "language"},
	FieldConstraints:  {"constraint", "limit", "budget", "timeline", "deadline"},
	FieldCoreFeatures: {"feature", "functionality", "requirement", "must-have", "core"},
}

// PromptContext is the material handed to the prompt templater.
type PromptContext struct {
	Goal                   string
	Context                *models.ProjectContext
	AnsweredClarifications []models.ClarificationRecord
	Stage                  Stage
	Note                   string
}

// Ready reports whether the state has enough coverage for final
// planning. A final stage forces readiness regardless of coverage.
func Ready(state *models.ProjectState, stage Stage) bool {
	if stage == StageFinal {
		return true
	}
	for _, f := range RequiredFields {
		if !Covered(state, f) {
			return false
		}
	}
	return true
}

// Covered reports whether one required field is present, either as a
// non-empty structured context field or through an answered
// clarification mentioning one of its keywords.
func Covered(state *models.ProjectState, field Field) bool {
	if field == FieldGoal {
		return strings.TrimSpace(state.Goal) != ""
	}
	if ctx := state.Context; ctx != nil {
		switch field {
		case FieldICP:
			if strings.TrimSpace(ctx.ICP) != "" {
				return true
			}
		case FieldTechStack:
			if len(ctx.TechStack) > 0 {
				return true
			}
		case FieldConstraints:
			if len(ctx.Constraints) > 0 {
				return true
			}
		case FieldCoreFeatures:
			if len(ctx.CoreFeatures) > 0 {
				return true
			}
		}
	}
	for _, c := range state.Clarifications {
		if !c.Answered() {
			continue
		}
		if clarificationMentions(c, keywords[field]) {
			return true
		}
	}
	return false
}

// MissingFields lists the required fields not yet covered.
func MissingFields(state *models.ProjectState) []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !Covered(state, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// BuildPromptContext assembles the planner prompt inputs from state.
func BuildPromptContext(state *models.ProjectState, stage Stage, note string) PromptContext {
	var answered []models.ClarificationRecord
	for _, c := range state.Clarifications {
		if c.Answered() {
			answered = append(answered, c)
		}
	}
	return PromptContext{
		Goal:                   state.Goal,
		Context:                state.Context,
		AnsweredClarifications: answered,
		Stage:                  stage,
		Note:                   note,
	}
}

// clarificationMentions checks questions and answers for any keyword,
// case-insensitively. Only records with a non-empty answer count.
func clarificationMentions(c models.ClarificationRecord, words []string) bool {
	match := func(s string) bool {
		lower := strings.ToLower(s)
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	for _, q := range c.Questions {
		if match(q) {
			return true
		}
	}
	for _, a := range c.Answers {
		if a != "" && match(a) {
			return true
		}
	}
	return false
}
