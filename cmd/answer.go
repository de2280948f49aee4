package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

var answerCmd = &cobra.Command{
	Use:   "answer [clarification-id] [answers...]",
	Short: "Answer the planner's open clarification",
	Long: `Answer an open clarification. With no arguments, the open
clarification is answered interactively, one question at a time.`,
	RunE: runAnswer,
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize [note]",
	Short: "Stop clarifying and request the final plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var note string
		if len(args) > 0 {
			note = args[0]
		}
		return handleSimple(cmd, engine.FinalizeScope{Note: note}, true)
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(finalizeCmd)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.orchestrator.Initialize(cmd.Context())
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no project yet; run: planvane new \"<goal>\"")
	}

	var clarificationID string
	var answers []string
	if len(args) > 0 {
		clarificationID = args[0]
		answers = args[1:]
	}

	record := pickClarification(state, clarificationID)
	if record == nil {
		return fmt.Errorf("no open clarification to answer")
	}

	if len(answers) == 0 {
		interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		if !interactive {
			return fmt.Errorf("no answers given and stdin is not a terminal")
		}
		answers, err = promptAnswers(record)
		if err != nil {
			return err
		}
	}

	result, err := a.orchestrator.HandleIntent(cmd.Context(), engine.AnswerClarifications{
		ClarificationID: record.ID,
		Answers:         answers,
	})
	if err != nil {
		return err
	}
	a.settle()
	a.track("answer_clarifications", result.State)
	printSummary(a.orchestrator.State())
	return nil
}

// pickClarification finds the clarification to answer: the one with the
// given id, or the most recent open one when no id is given.
func pickClarification(state *models.ProjectState, id string) *models.ClarificationRecord {
	if id != "" {
		return state.ClarificationByID(id)
	}
	for i := len(state.Clarifications) - 1; i >= 0; i-- {
		if state.Clarifications[i].Status == models.ClarificationOpen {
			return &state.Clarifications[i]
		}
	}
	return nil
}

func promptAnswers(record *models.ClarificationRecord) ([]string, error) {
	reader := bufio.NewReader(os.Stdin)
	answers := make([]string, 0, len(record.Questions))
	for i, q := range record.Questions {
		fmt.Printf("%d. %s\n> ", i+1, q)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read answer: %w", err)
		}
		answers = append(answers, strings.TrimSpace(line))
	}
	return answers, nil
}
