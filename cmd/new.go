package cmd

import (
	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

var newCmd = &cobra.Command{
	Use:   "new \"Project goal\"",
	Short: "Create a project and start the planning conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().String("id", "", "project id (defaults to a slug of the goal)")
	newCmd.Flags().String("icp", "", "target customer / user profile")
	newCmd.Flags().StringSlice("tech", nil, "tech stack entries")
	newCmd.Flags().StringSlice("constraint", nil, "constraints (budget, timeline, ...)")
	newCmd.Flags().StringSlice("feature", nil, "core features")
	newCmd.Flags().Bool("require-execution-approval", false, "gate execution start behind an approval")
	newCmd.Flags().Bool("require-retry-approval", true, "gate retries behind an approval")
}

func runNew(cmd *cobra.Command, args []string) error {
	goal := args[0]

	a, err := buildApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.orchestrator.Initialize(cmd.Context()); err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("id")
	if projectID == "" {
		projectID = slugify(goal)
	}

	icp, _ := cmd.Flags().GetString("icp")
	tech, _ := cmd.Flags().GetStringSlice("tech")
	constraints, _ := cmd.Flags().GetStringSlice("constraint")
	features, _ := cmd.Flags().GetStringSlice("feature")

	var projectContext *models.ProjectContext
	if icp != "" || len(tech) > 0 || len(constraints) > 0 || len(features) > 0 {
		projectContext = &models.ProjectContext{
			ICP:          icp,
			TechStack:    tech,
			Constraints:  constraints,
			CoreFeatures: features,
		}
	}

	settings := a.cfg.Settings()
	if cmd.Flags().Changed("require-execution-approval") {
		settings.RequireExecutionApproval, _ = cmd.Flags().GetBool("require-execution-approval")
	}
	if cmd.Flags().Changed("require-retry-approval") {
		settings.RequireRetryApproval, _ = cmd.Flags().GetBool("require-retry-approval")
	}

	result, err := a.orchestrator.HandleIntent(cmd.Context(), engine.CreateProject{
		ProjectID: projectID,
		Goal:      goal,
		Context:   projectContext,
		Settings:  &settings,
	})
	if err != nil {
		return err
	}
	a.settle()
	a.track("create_project", result.State)
	printSummary(a.orchestrator.State())
	return nil
}
