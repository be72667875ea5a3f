package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
)

var planTargets []string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a deploy would change",
	Long: `Compares the manifest and templates against the recorded state and
the live environment, and prints the stack operations a deploy would run.`,
	RunE: runPlanCmd,
}

func init() {
	planCmd.Flags().StringSliceVar(&planTargets, "stage", nil, "Limit the plan to these stages (and their dependencies)")
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	drv, err := proj.loadDriver(ctx)
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	eng := engine.New(drv)
	plan, err := eng.CreatePlanWithTargets(ctx, proj.stages, st, planTargets)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if !hasWork(plan) {
		fmt.Println("No changes. Stacks are up-to-date.")
		return nil
	}

	fmt.Println("Stagehand will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
