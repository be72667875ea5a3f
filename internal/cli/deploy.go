package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
	"github.com/stagehand-io/stagehand/internal/model"
)

var (
	deployAutoApprove     bool
	deployTargets         []string
	deployContinueOnError bool
	deployParallelism     int
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the stacks",
	Long: `Plans and applies the stack operations needed to bring the
environment in line with the manifest. Independent stages deploy in
parallel; a stage never starts before the stages it imports from finish.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&deployAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	deployCmd.Flags().StringSliceVar(&deployTargets, "stage", nil, "Limit the deploy to these stages (and their dependencies)")
	deployCmd.Flags().BoolVar(&deployContinueOnError, "continue-on-error", false, "Keep deploying independent stages after a failure")
	deployCmd.Flags().IntVar(&deployParallelism, "parallelism", 0, "Maximum concurrent stack operations (0 = default)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	drv, err := proj.loadDriver(ctx)
	if err != nil {
		return err
	}

	if err := proj.backend.Lock(); err != nil {
		return err
	}
	defer proj.backend.Unlock()

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	eng := engine.New(drv)
	eng.ContinueOnError = deployContinueOnError
	if deployParallelism > 0 {
		eng.Parallelism = deployParallelism
	}

	fmt.Print("Calculating plan... ")
	plan, err := eng.CreatePlanWithTargets(ctx, proj.stages, st, deployTargets)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if !hasWork(plan) {
		fmt.Println("No changes. Stacks are up-to-date.")
		return nil
	}

	fmt.Println("\nStagehand will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !deployAutoApprove {
		if !confirm("\nDo you want to perform these actions?") {
			fmt.Println("Deploy cancelled.")
			return nil
		}
	}

	fmt.Println()
	applyErr := eng.ApplyPlanWithCallback(ctx, plan, st, printApplyEvent)

	// Persist whatever succeeded so a rerun picks up where this one stopped.
	if writeErr := proj.backend.Write(ctx, st); writeErr != nil {
		if applyErr != nil {
			return fmt.Errorf("deploy failed (%v) and state write failed: %w", applyErr, writeErr)
		}
		return fmt.Errorf("failed to write state: %w", writeErr)
	}

	writeAuditLog(proj.dir, auditEntry{
		Operation: "deploy",
		Project:   proj.manifest.Project,
		Changes:   auditChanges(plan),
		Summary:   auditSummary(plan),
		Error:     errString(applyErr),
	})

	if applyErr != nil {
		return fmt.Errorf("deploy failed: %w", applyErr)
	}

	fmt.Printf("\nDeploy complete! Stacks: %d created, %d updated, %d recreated, %d deleted.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Recreate, plan.Summary.Delete)

	if len(st.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		keys := make([]string, 0, len(st.Outputs))
		for k := range st.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, st.Outputs[k])
		}
	}

	return nil
}

// printApplyEvent renders engine progress one line per transition.
func printApplyEvent(ev engine.ApplyEvent) {
	switch ev.Status {
	case "started":
		fmt.Printf("%s: %s in progress...\n", ev.Stage, ev.Action)
	case "completed":
		fmt.Printf("\033[32m%s: %s complete (%s)\033[0m\n", ev.Stage, ev.Action, ev.Duration.Round(time.Second))
	case "failed":
		fmt.Printf("\033[31m%s: %s failed: %v\033[0m\n", ev.Stage, ev.Action, ev.Error)
	case "skipped":
		fmt.Printf("\033[33m%s: skipped (%v)\033[0m\n", ev.Stage, ev.Error)
	}
}

func auditChanges(plan *model.Plan) []auditChange {
	var out []auditChange
	for _, c := range plan.Changes {
		if c.Action == model.ActionNoOp {
			continue
		}
		out = append(out, auditChange{Stage: c.Stage, StackName: c.StackName, Action: c.Action})
	}
	return out
}

func auditSummary(plan *model.Plan) map[string]int {
	return map[string]int{
		"create":   plan.Summary.Create,
		"update":   plan.Summary.Update,
		"delete":   plan.Summary.Delete,
		"recreate": plan.Summary.Recreate,
		"noop":     plan.Summary.NoOp,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
