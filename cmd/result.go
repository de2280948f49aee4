package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

var resultCmd = &cobra.Command{
	Use:   "result <task-id> <success|failure> [message]",
	Short: "Record an agent result for an outstanding task",
	Long: `Record a backend completion by hand. Useful when the executor runs
out-of-band: pipe its result envelope via --stdin, or pass a status and
optional message directly.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runResult,
}

func init() {
	rootCmd.AddCommand(resultCmd)
	resultCmd.Flags().Bool("stdin", false, "read a result envelope (JSON) from stdin")
}

func runResult(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	var result models.AgentResult
	if useStdin, _ := cmd.Flags().GetBool("stdin"); useStdin {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			// Free text counts as a success with the raw text attached.
			result = models.AgentResult{
				Status:    models.ResultSuccess,
				Artifacts: []any{string(raw)},
			}
		}
		result.TaskID = taskID
	} else {
		if len(args) < 2 {
			return fmt.Errorf("pass a status (success|failure) or use --stdin")
		}
		status := models.ResultStatus(args[1])
		if status != models.ResultSuccess && status != models.ResultFailure {
			return fmt.Errorf("status must be success or failure, got %q", args[1])
		}
		result = models.AgentResult{TaskID: taskID, Status: status}
		if len(args) > 2 {
			if status == models.ResultFailure {
				result.Error = args[2]
			} else {
				result.Output = args[2]
			}
		}
	}

	return handleSimple(cmd, engine.AgentResultIntent{Result: result}, false)
}
