package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the health of the deployed stacks",
	Long: `Inspects the live resources behind the deployed stacks: subnets and
availability zones, the image repository, the service and its tasks, target
health, and the pipeline. Each failing check comes with a hint pointing at
the usual cause.`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	v, err := verify.New(ctx, proj.region(), proj.profile())
	if err != nil {
		return err
	}

	results, err := v.Run(ctx, st)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.OK {
			fmt.Printf("\033[32mok\033[0m    %s (%s): %s\n", res.Name, res.Target, res.Detail)
			continue
		}
		failed++
		fmt.Printf("\033[31mfail\033[0m  %s (%s): %s\n", res.Name, res.Target, res.Detail)
		if res.Hint != "" {
			fmt.Printf("        hint: %s\n", res.Hint)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	fmt.Printf("\nAll %d checks passed.\n", len(results))
	return nil
}
