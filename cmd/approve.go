package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planvane/planvane/internal/engine"
	"github.com/planvane/planvane/models"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Consume a pending approval",
}

var approvePlanCmd = &cobra.Command{
	Use:   "plan [approval-id] [plan-id]",
	Short: "Approve the proposed plan and create its execution tasks",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runApprovePlan,
}

var approveExecutionCmd = &cobra.Command{
	Use:   "execution [approval-id]",
	Short: "Approve execution start or retry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApproveExecution,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.AddCommand(approvePlanCmd)
	approveCmd.AddCommand(approveExecutionCmd)
}

func runApprovePlan(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("no project yet; run: planvane new \"<goal>\"")
	}

	var approvalID, planID string
	if len(args) > 0 {
		approvalID = args[0]
	}
	if len(args) > 1 {
		planID = args[1]
	}
	if approvalID == "" {
		// Default to the single pending plan approval, if unambiguous.
		pending := pendingApprovals(state, models.ApprovalPlan)
		if len(pending) != 1 {
			return fmt.Errorf("%d plan approvals pending; pass an approval id", len(pending))
		}
		approvalID = pending[0].ID
		planID = pending[0].PlanID
	}
	if planID == "" {
		if approval := state.ApprovalByID(approvalID); approval != nil {
			planID = approval.PlanID
		}
	}

	result, err := a.orchestrator.HandleIntent(cmd.Context(), engine.ApprovePlan{
		ApprovalID: approvalID,
		PlanID:     planID,
	})
	if err != nil {
		return err
	}
	a.settle()
	a.track("approve_plan", result.State)
	printSummary(a.orchestrator.State())
	return nil
}

func runApproveExecution(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("no project yet; run: planvane new \"<goal>\"")
	}

	var approvalID string
	if len(args) > 0 {
		approvalID = args[0]
	} else {
		pending := append(
			pendingApprovals(state, models.ApprovalExecutionStart),
			pendingApprovals(state, models.ApprovalExecutionRetry)...)
		if len(pending) != 1 {
			return fmt.Errorf("%d execution approvals pending; pass an approval id", len(pending))
		}
		approvalID = pending[0].ID
	}

	result, err := a.orchestrator.HandleIntent(cmd.Context(), engine.ApproveExecution{ApprovalID: approvalID})
	if err != nil {
		return err
	}
	a.settle()
	a.track("approve_execution", result.State)
	printSummary(a.orchestrator.State())
	return nil
}

func pendingApprovals(state *models.ProjectState, typ models.ApprovalType) []models.ApprovalRequest {
	var out []models.ApprovalRequest
	for _, approval := range state.Approvals {
		if approval.Type == typ {
			out = append(out, approval)
		}
	}
	return out
}
