package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
	"github.com/stagehand-io/stagehand/internal/model"
)

var (
	teardownAutoApprove bool
	teardownForce       bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete all deployed stacks in reverse order",
	Long: `Deletes every stack this project deployed, one at a time, in the
exact reverse of the deploy order. Deletion stops at the first failure so a
stack is never removed from under one that still imports from it.

Stages marked protected in the manifest are skipped unless --force is given.`,
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().BoolVar(&teardownAutoApprove, "auto-approve", false, "Skip interactive confirmation")
	teardownCmd.Flags().BoolVar(&teardownForce, "force", false, "Also delete stages marked protected")
}

func runTeardown(cmd *cobra.Command, args []string) error {
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
	if len(st.Records) == 0 {
		fmt.Println("Nothing to tear down.")
		return nil
	}

	graph, err := engine.BuildGraph(proj.stages)
	if err != nil {
		return err
	}

	protected := map[string]bool{}
	for _, stage := range proj.stages {
		if stage.Protected {
			protected[stage.Name] = true
		}
	}

	var order, skipped []string
	for _, name := range teardownOrder(graph, st) {
		if protected[name] && !teardownForce {
			skipped = append(skipped, name)
			continue
		}
		order = append(order, name)
	}

	if len(skipped) > 0 {
		fmt.Printf("Skipping protected stage(s): %s (use --force to delete)\n", strings.Join(skipped, ", "))
	}
	if len(order) == 0 {
		fmt.Println("Nothing to tear down.")
		return nil
	}

	fmt.Printf("The following stacks will be deleted, in order:\n")
	for _, name := range order {
		rec := st.Record(name)
		fmt.Printf("  \033[31m- %s (%s)\033[0m\n", name, rec.StackName)
	}

	if !teardownAutoApprove {
		if !confirm("\nThis cannot be undone. Delete these stacks?") {
			fmt.Println("Teardown cancelled.")
			return nil
		}
	}

	fmt.Println()
	eng := engine.New(drv)
	teardownErr := eng.Teardown(ctx, st, order, printApplyEvent)

	if writeErr := proj.backend.Write(ctx, st); writeErr != nil {
		if teardownErr != nil {
			return fmt.Errorf("teardown failed (%v) and state write failed: %w", teardownErr, writeErr)
		}
		return fmt.Errorf("failed to write state: %w", writeErr)
	}

	writeAuditLog(proj.dir, auditEntry{
		Operation: "teardown",
		Project:   proj.manifest.Project,
		Error:     errString(teardownErr),
	})

	if teardownErr != nil {
		return teardownErr
	}

	fmt.Println("\nTeardown complete.")
	return nil
}

// teardownOrder returns recorded stages in reverse deploy order. Stages that
// were removed from the manifest no longer appear in the graph; they go
// first, newest record last deployed first.
func teardownOrder(graph *engine.Graph, st *model.State) []string {
	inGraph := map[string]bool{}
	var order []string
	for _, name := range graph.TeardownOrder() {
		inGraph[name] = true
		if st.Record(name) != nil {
			order = append(order, name)
		}
	}

	var orphans []string
	for _, rec := range st.Records {
		if !inGraph[rec.Stage] {
			orphans = append(orphans, rec.Stage)
		}
	}
	// Orphans have no recorded dependencies on current stages, delete them
	// before anything the manifest still tracks.
	for i, j := 0, len(orphans)-1; i < j; i, j = i+1, j-1 {
		orphans[i], orphans[j] = orphans[j], orphans[i]
	}
	return append(orphans, order...)
}
