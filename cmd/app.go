package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/planvane/planvane/internal/agent"
	"github.com/planvane/planvane/internal/config"
	"github.com/planvane/planvane/internal/dispatch"
	"github.com/planvane/planvane/internal/llm"
	"github.com/planvane/planvane/internal/orchestrator"
	"github.com/planvane/planvane/internal/prompt"
	"github.com/planvane/planvane/internal/telemetry"
	"github.com/planvane/planvane/models"
	"github.com/planvane/planvane/store"
)

// app bundles the assembled collaborators for one CLI invocation.
type app struct {
	cfg          *config.AppConfig
	store        store.ProjectStore
	orchestrator *orchestrator.Orchestrator
	planner      *agent.PlannerBackend
	executor     *agent.HTTPExecutorBackend
	telemetry    telemetry.Client
}

// buildApp assembles the store, backends, dispatcher and façade from
// configuration. withLLM controls whether a chat model is constructed;
// commands that never reach the planner skip it so they work without an
// API key.
func buildApp(ctx context.Context, withLLM bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: st}

	var completer llm.Completer
	if withLLM {
		completer, err = llm.NewCompleter(ctx, cfg.LLMConfig())
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	prompts := prompt.New(
		prompt.WithMode(prompt.Mode(cfg.Planner.Mode)),
		prompt.WithTemplateDir(afero.NewOsFs(), cfg.Planner.TemplateDir),
	)

	// The orchestrator is also the sink the backends feed results into;
	// wire the cycle up after constructing it.
	var sink deferredSink
	if completer != nil {
		a.planner = agent.NewPlannerBackend(completer, prompts, &sink, slog.Default())
	}
	if cfg.Executor.URL != "" {
		a.executor = agent.NewHTTPExecutorBackend(cfg.Executor.URL, &sink, slog.Default())
	}

	var plannerBackend dispatch.AgentBackend
	if a.planner != nil {
		plannerBackend = a.planner
	}
	var executorBackend dispatch.AgentBackend
	if a.executor != nil {
		executorBackend = a.executor
	}
	d := dispatch.New(plannerBackend, executorBackend, cliApprovalSurface{}, slog.Default())
	a.orchestrator = orchestrator.New(st, d)
	sink.target = a.orchestrator

	tc, err := telemetry.NewPostHogClient(telemetryKey(cfg), cfg.StatePath(), version)
	if err != nil {
		tc = telemetry.Noop{}
	}
	a.telemetry = tc

	return a, nil
}

func telemetryKey(cfg *config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.Telemetry.APIKey
}

func openStore(cfg *config.AppConfig) (store.ProjectStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLiteProjectStore(cfg.DBPath())
	case "file", "":
		return store.NewFileProjectStore(cfg.StatePath(), cfg.Project.Format)
	default:
		return nil, fmt.Errorf("unknown store driver %q (supported: file, sqlite)", cfg.Store.Driver)
	}
}

// close flushes telemetry and releases the store.
func (a *app) close() {
	if a.telemetry != nil {
		_ = a.telemetry.Close()
	}
	_ = a.store.Close()
}

// settle waits for in-flight backend calls so the process does not exit
// with a planner or executor turn still running.
func (a *app) settle() {
	if a.planner != nil {
		a.planner.Wait()
	}
	if a.executor != nil {
		a.executor.Wait()
	}
}

// track reports an intent outcome when telemetry is enabled.
func (a *app) track(intentType string, state *models.ProjectState) {
	props := map[string]any{"intent": intentType}
	if state != nil {
		props["phase"] = string(state.Phase)
	}
	a.telemetry.Track("intent_handled", props)
}

// loadConfigForDisplay returns the effective configuration with secrets
// redacted.
func loadConfigForDisplay() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "(set)"
	}
	if cfg.Telemetry.APIKey != "" {
		cfg.Telemetry.APIKey = "(set)"
	}
	return cfg, nil
}

// readOnlyLoader returns a snapshot loader that never takes the writer
// lock. Each call re-reads the committed state.
func readOnlyLoader() (*config.AppConfig, func() (*models.ProjectState, error), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		load := func() (*models.ProjectState, error) {
			st, err := store.NewSQLiteProjectStore(cfg.DBPath())
			if err != nil {
				return nil, err
			}
			defer func() { _ = st.Close() }()
			return st.Load()
		}
		return cfg, load, nil
	default:
		load := func() (*models.ProjectState, error) {
			return store.ReadStateFile(cfg.StatePath(), cfg.Project.Format)
		}
		return cfg, load, nil
	}
}

// deferredSink breaks the construction cycle between the backends and
// the orchestrator.
type deferredSink struct {
	target agent.ResultSink
}

func (s *deferredSink) Submit(ctx context.Context, result models.AgentResult) {
	if s.target != nil {
		s.target.Submit(ctx, result)
	}
}

// cliApprovalSurface surfaces pending approvals on stdout; the TUI
// dashboard shows them too.
type cliApprovalSurface struct{}

func (cliApprovalSurface) NotifyApproval(_ context.Context, approval models.ApprovalRequest) error {
	fmt.Printf("approval required (%s): %s\n", approval.Type, approval.ID)
	switch approval.Type {
	case models.ApprovalPlan:
		fmt.Printf("  approve with: planvane approve plan %s %s\n", approval.ID, approval.PlanID)
	default:
		fmt.Printf("  approve with: planvane approve execution %s\n", approval.ID)
	}
	return nil
}

// printSummary shows the state after a handled intent.
func printSummary(state *models.ProjectState) {
	if state == nil {
		return
	}
	fmt.Printf("phase=%s version=%d\n", state.Phase, state.Version)
	if state.Execution != nil {
		s := state.Execution.Summary
		fmt.Printf("execution: total=%d completed=%d failed=%d in_progress=%d\n",
			s.Total, s.Completed, s.Failed, s.InProgress)
	}
	for _, c := range state.Clarifications {
		if c.Status == models.ClarificationOpen {
			for _, q := range c.Questions {
				fmt.Printf("question [%s]: %s\n", c.ID, q)
			}
			fmt.Printf("  answer with: planvane answer %s \"<answer>\"\n", c.ID)
		}
	}
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
