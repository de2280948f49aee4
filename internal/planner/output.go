// Package planner parses raw planner output into a strict PlanningOutput:
// either a single clarifying question or a structured plan draft.
package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is the failure surfaced when no JSON object can be located
// in a string response.
var ErrNoJSON = fmt.Errorf("No valid JSON object found in response")

// fencedBlockRegex matches the first markdown code fence, with or
// without a language tag, and captures its body.
var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// PlanningOutput is the normalized planner turn. Exactly one of
// Questions (length 1) or Plan is set.
type PlanningOutput struct {
	Questions  []string          `json:"questions,omitempty"`
	Plan       *PlanDraft        `json:"plan,omitempty"`
	Discussion []DiscussionDraft `json:"discussion,omitempty"`
}

// PlanDraft is the structured plan as the planner emitted it, before the
// state machine's tolerant normalization.
type PlanDraft struct {
	Roadmap   []MilestoneDraft `json:"roadmap" validate:"required,min=1,dive"`
	Features  []FeatureDraft   `json:"features" validate:"required,min=1,dive"`
	Tasks     []TaskDraft      `json:"tasks" validate:"required,min=1,dive"`
	Rationale string           `json:"rationale,omitempty"`
}

// MilestoneDraft is one roadmap entry of the wire schema.
type MilestoneDraft struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title" validate:"nonempty"`
	Description string `json:"description,omitempty"`
	TargetDate  string `json:"targetDate,omitempty"`
}

// FeatureDraft is one feature entry of the wire schema.
type FeatureDraft struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title" validate:"nonempty"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Owners       []string `json:"owners,omitempty"`
}

// TaskDraft is one execution task definition of the wire schema. Role is
// an open string; when absent, normalization supplies "execution".
type TaskDraft struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title" validate:"nonempty"`
	Description string         `json:"description,omitempty"`
	Role        string         `json:"role,omitempty"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// DiscussionDraft is an optional planner-side discussion entry, either a
// bare string or a {type, message, ...} object on the wire.
type DiscussionDraft struct {
	Type     string         `json:"type,omitempty"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// rawOutput mirrors the wire schema before structural validation.
type rawOutput struct {
	Questions  []string        `json:"questions"`
	Plan       *PlanDraft      `json:"plan"`
	Discussion json.RawMessage `json:"discussion"`
}

// Parse produces a strict PlanningOutput from raw planner output. The
// input is either a string (possibly wrapped in prose or code fences) or
// an already-decoded mapping.
func Parse(raw any) (*PlanningOutput, error) {
	switch v := raw.(type) {
	case string:
		data, err := extractJSON(v)
		if err != nil {
			return nil, err
		}
		return decodeOutput(data)
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("re-encode planner output: %w", err)
		}
		return decodeOutput(data)
	case nil:
		return nil, fmt.Errorf("planner output is empty")
	default:
		return nil, fmt.Errorf("unsupported planner output type %T", raw)
	}
}

// extractJSON locates a JSON object inside free-form planner text.
// Tried in order: the whole trimmed text when it starts with '{', the
// body of the first fenced code block, and the substring from the first
// '{' to the last '}'.
func extractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "{") {
		if json.Valid([]byte(trimmed)) {
			return []byte(trimmed), nil
		}
	}

	if m := fencedBlockRegex.FindStringSubmatch(trimmed); m != nil {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return []byte(body), nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}

	return nil, ErrNoJSON
}

// decodeOutput unmarshals and structurally validates the wire object.
func decodeOutput(data []byte) (*PlanningOutput, error) {
	var raw rawOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode planner output: %w", err)
	}

	hasQuestions := len(raw.Questions) > 0
	hasPlan := raw.Plan != nil

	if hasQuestions && hasPlan {
		return nil, fmt.Errorf("planner output contains both questions and a plan")
	}
	if !hasQuestions && !hasPlan {
		return nil, fmt.Errorf("planner output contains neither questions nor a plan")
	}

	out := &PlanningOutput{Discussion: decodeDiscussion(raw.Discussion)}

	if hasQuestions {
		if len(raw.Questions) > 1 {
			return nil, fmt.Errorf("planner output carries %d questions; at most one per turn", len(raw.Questions))
		}
		q := strings.TrimSpace(raw.Questions[0])
		if q == "" {
			return nil, fmt.Errorf("planner question is empty")
		}
		out.Questions = []string{q}
		return out, nil
	}

	if result := ValidatePlanDraft(raw.Plan); !result.Valid {
		return nil, fmt.Errorf("plan draft invalid: %s", result.ErrorSummary())
	}
	out.Plan = raw.Plan
	return out, nil
}

// decodeDiscussion folds the optional discussion array, which may mix
// bare strings and {type, message} objects. Malformed entries are
// dropped rather than failing the turn.
func decodeDiscussion(raw json.RawMessage) []DiscussionDraft {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []DiscussionDraft
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, DiscussionDraft{Message: s})
			}
			continue
		}
		var d DiscussionDraft
		if err := json.Unmarshal(item, &d); err == nil && strings.TrimSpace(d.Message) != "" {
			out = append(out, d)
		}
	}
	return out
}
