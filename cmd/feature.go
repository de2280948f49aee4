package cmd

import (
	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
)

var featureCmd = &cobra.Command{
	Use:   "feature \"Description\"",
	Short: "Add a feature and re-enter planning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleSimple(cmd, engine.AddFeature{Description: args[0]}, true)
	},
}

var replanCmd = &cobra.Command{
	Use:   "replan [reason]",
	Short: "Discard course and plan again",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var reason string
		if len(args) > 0 {
			reason = args[0]
		}
		return handleSimple(cmd, engine.Replan{Reason: reason}, true)
	},
}

func init() {
	rootCmd.AddCommand(featureCmd)
	rootCmd.AddCommand(replanCmd)
}

// handleSimple runs one intent against an initialized app and prints
// the resulting summary. withLLM selects whether the planner backend is
// constructed.
func handleSimple(cmd *cobra.Command, intent engine.Intent, withLLM bool) error {
	a, err := buildApp(cmd.Context(), withLLM)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.orchestrator.Initialize(cmd.Context()); err != nil {
		return err
	}
	result, err := a.orchestrator.HandleIntent(cmd.Context(), intent)
	if err != nil {
		return err
	}
	a.settle()
	a.track(intent.IntentType(), result.State)
	printSummary(a.orchestrator.State())
	return nil
}
