package cmd

import (
	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run [task-ids...]",
	Short: "Dispatch pending execution tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleSimple(cmd, engine.RunTasks{TaskIDs: args}, false)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [task-ids...]",
	Short: "Reset failed execution tasks and run them again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleSimple(cmd, engine.RetryTasks{TaskIDs: args}, false)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [reason]",
	Short: "Pause the project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var reason string
		if len(args) > 0 {
			reason = args[0]
		}
		return handleSimple(cmd, engine.PauseExecution{Reason: reason}, false)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(pauseCmd)
}
