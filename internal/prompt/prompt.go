// Package prompt assembles the planner prompts. Templates use plain
// $NAME substitution; values are inserted verbatim, so template files
// are trusted local input.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Mode selects the clarification prompting style.
type Mode string

const (
	// ModeConversation asks one focused question per turn.
	ModeConversation Mode = "conversation"
	// ModeChecklist walks the missing fields as a checklist.
	ModeChecklist Mode = "checklist"
)

// DefaultMode is the clarification style used when none is configured.
const DefaultMode = ModeConversation

const (
	clarificationFile = "clarification.txt"
	checklistFile     = "checklist.txt"
	finalFile         = "final.txt"
)

// StrictJSONReminder is appended to the prompt on the single retry after
// an unparseable planner response.
const StrictJSONReminder = `

REMINDER: Respond with ONLY a single valid JSON object, no markdown fences,
no prose before or after. The object must contain exactly one of
"questions" (an array with one question string) or "plan".`

// Assembler renders planner prompts from built-in templates, optionally
// overridden by files in a user-supplied template directory.
type Assembler struct {
	fs   afero.Fs
	dir  string
	mode Mode
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithTemplateDir overlays templates from dir: a file named
// clarification.txt, checklist.txt or final.txt replaces the built-in.
func WithTemplateDir(fs afero.Fs, dir string) Option {
	return func(a *Assembler) {
		a.fs = fs
		a.dir = dir
	}
}

// WithMode sets the clarification prompting style.
func WithMode(mode Mode) Option {
	return func(a *Assembler) {
		if mode == ModeConversation || mode == ModeChecklist {
			a.mode = mode
		}
	}
}

// New creates an Assembler with the built-in templates.
func New(opts ...Option) *Assembler {
	a := &Assembler{fs: afero.NewOsFs(), mode: DefaultMode}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Vars is the substitution material for one planner turn.
type Vars struct {
	Goal           string
	Context        any
	Clarifications any
	Note           string
}

// Clarification renders the clarification-stage prompt in the
// configured mode.
func (a *Assembler) Clarification(v Vars) string {
	name, fallback := clarificationFile, clarificationTemplate
	if a.mode == ModeChecklist {
		name, fallback = checklistFile, checklistTemplate
	}
	return a.render(name, fallback, v)
}

// FinalPlan renders the final planning prompt.
func (a *Assembler) FinalPlan(v Vars) string {
	return a.render(finalFile, finalTemplate, v)
}

func (a *Assembler) render(name, fallback string, v Vars) string {
	tmpl := fallback
	if a.dir != "" {
		if data, err := afero.ReadFile(a.fs, a.dir+string(os.PathSeparator)+name); err == nil {
			tmpl = string(data)
		}
	}
	vars := map[string]string{
		"GOAL":           v.Goal,
		"CONTEXT":        renderBlock(v.Context),
		"CLARIFICATIONS": renderBlock(v.Clarifications),
		"NOTE":           v.Note,
	}
	// $NAME substitution; values are not escaped.
	return os.Expand(tmpl, func(key string) string {
		return vars[key]
	})
}

// renderBlock pretty-prints structured prompt material, or "(none)" when
// there is nothing to show.
func renderBlock(v any) string {
	if v == nil {
		return "(none)"
	}
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return "(none)"
		}
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if string(data) == "null" || string(data) == "[]" || string(data) == "{}" {
		return "(none)"
	}
	return string(data)
}

const clarificationTemplate = `You are a software project planner refining the scope of a project.

GOAL:
$GOAL

STRUCTURED CONTEXT:
$CONTEXT

ANSWERED CLARIFICATIONS:
$CLARIFICATIONS

NOTE:
$NOTE

Decide what single piece of missing scope matters most (target users,
tech stack, constraints, or core features) and ask about it.

Respond with a JSON object containing exactly one of:
  { "questions": ["<one focused question>"] }
  { "plan": { ... } }

Ask at most ONE question per turn. Only emit a plan when the scope is
already clear. Output ONLY valid JSON.`

const checklistTemplate = `You are a software project planner refining the scope of a project.

GOAL:
$GOAL

STRUCTURED CONTEXT:
$CONTEXT

ANSWERED CLARIFICATIONS:
$CLARIFICATIONS

NOTE:
$NOTE

Work through this checklist in order and ask about the FIRST item that
is not yet covered: target users (ICP), tech stack, constraints, core
features.

Respond with a JSON object containing exactly one of:
  { "questions": ["<one focused question>"] }
  { "plan": { ... } }

Ask at most ONE question per turn. Output ONLY valid JSON.`

const finalTemplate = `You are a software project planner producing the final plan.

GOAL:
$GOAL

STRUCTURED CONTEXT:
$CONTEXT

ANSWERED CLARIFICATIONS:
$CLARIFICATIONS

NOTE:
$NOTE

Produce the complete plan as a JSON object with this schema:

{
  "plan": {
    "roadmap":  [ { "id"?, "title", "description"?, "targetDate"? } ],
    "features": [ { "id"?, "title", "description"?, "dependencies"?, "owners"? } ],
    "tasks":    [ { "id"?, "title", "description"?, "role", "dependsOn"?, "payload"? } ],
    "rationale": "why the plan is shaped this way"
  }
}

RULES:
- roadmap, features and tasks each need at least one entry
- every title must be non-empty
- task role is one of: frontend, backend, ai_orchestration,
  infrastructure, testing, documentation, design
- Output ONLY valid JSON, no markdown or explanation`
