package cmd

import (
	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
)

var clarifyCmd = &cobra.Command{
	Use:   "clarify \"Question\" [more questions...]",
	Short: "Open a clarification out-of-band",
	Long: `Record questions that need answering before the plan can be
finalized, without going through the planner.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleSimple(cmd, engine.RequestClarifications{Questions: args}, false)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForDisplay()
		if err != nil {
			return err
		}
		return printJSON(cfg)
	},
}

func init() {
	rootCmd.AddCommand(clarifyCmd)
	rootCmd.AddCommand(configCmd)
}
