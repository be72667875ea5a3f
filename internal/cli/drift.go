package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
)

var driftUpdate bool

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Detect divergence between recorded state and live stacks",
	Long: `Describes every recorded stack and reports stacks that vanished,
changed parameters or outputs out of band, or sit in a failed state.
Exits non-zero when drift is found; run 'stagehand deploy' to reconcile the
stacks, or rerun with --update to accept the live values into state.`,
	RunE: runDrift,
}

func init() {
	driftCmd.Flags().BoolVar(&driftUpdate, "update", false,
		"Write the live parameters, outputs, and statuses back to state")
}

func runDrift(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	drv, err := proj.loadDriver(ctx)
	if err != nil {
		return err
	}

	if driftUpdate {
		if err := proj.backend.Lock(); err != nil {
			return err
		}
		defer proj.backend.Unlock()
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(st.Records) == 0 {
		fmt.Println("No deployment records. Nothing to compare.")
		return nil
	}

	eng := engine.New(drv)
	drifts, err := eng.DetectDrift(ctx, st)
	if err != nil {
		return err
	}

	if len(drifts) == 0 {
		fmt.Println("No drift detected.")
		return nil
	}

	for _, d := range drifts {
		fmt.Printf("\033[33m~ %s (%s): %s drift: %s\033[0m\n", d.Stage, d.StackName, d.Kind, d.Detail)
	}

	if !driftUpdate {
		return fmt.Errorf("%d drift(s) detected", len(drifts))
	}

	updated, err := eng.RefreshState(ctx, st)
	if err != nil {
		return err
	}
	if err := proj.backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(proj.dir, auditEntry{
		Operation: "drift.update",
		Project:   proj.manifest.Project,
		Summary:   map[string]int{"updated": updated},
	})

	fmt.Printf("\nUpdated %d record(s); state now matches the environment.\n", updated)
	return nil
}
