package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/planvane/planvane/internal/ui"
	"github.com/planvane/planvane/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current project state",
	RunE:  runStatus,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the live read-only dashboard",
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dashboardCmd)
	statusCmd.Flags().Bool("json", false, "print the full state document as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.orchestrator.Initialize(cmd.Context())
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("no project yet — run: planvane new \"<goal>\"")
		return nil
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(state)
	}

	fmt.Printf("project: %s\n", state.ProjectID)
	if state.Goal != "" {
		fmt.Printf("goal:    %s\n", state.Goal)
	}
	printSummary(state)
	for _, approval := range state.Approvals {
		fmt.Printf("pending approval [%s]: %s\n", approval.Type, approval.ID)
	}
	if state.CurrentPlanID != "" {
		plan := state.Plans[state.CurrentPlanID]
		fmt.Printf("current plan %s: %d milestones, %d features, %d tasks\n",
			plan.ID, len(plan.Roadmap), len(plan.Features), len(plan.Tasks))
	}
	for _, t := range state.PendingTasks {
		if t.Type == models.TaskExecution {
			title, _ := t.Input["title"].(string)
			fmt.Printf("task %s [%s] %s\n", t.ID, t.Status, title)
		}
	}
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	// The dashboard is a pure reader: it must not take the writer lock,
	// so it never opens the file store; each refresh re-reads the
	// committed snapshot (the state file directly, or a short-lived
	// SQLite connection).
	cfg, load, err := readOnlyLoader()
	if err != nil {
		return err
	}

	model, err := ui.NewDashboard(load, cfg.StatePath())
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
