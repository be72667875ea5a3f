package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify deployment records",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded stages",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <stage>",
	Short: "Show the deployment record for a stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <stage>",
	Short: "Forget a stage without deleting its stack",
	Long: `Removes the deployment record for a stage. The stack itself is
left untouched; the next plan will see it as an existing stack to adopt.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(st.Records) == 0 {
		fmt.Println("State is empty.")
		return nil
	}
	for _, rec := range st.Records {
		fmt.Printf("%s\t%s\t%s\n", rec.Stage, rec.StackName, rec.Status)
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	rec := st.Record(args[0])
	if rec == nil {
		return fmt.Errorf("no deployment record for stage %q", args[0])
	}

	fmt.Printf("stage:      %s\n", rec.Stage)
	fmt.Printf("stack name: %s\n", rec.StackName)
	fmt.Printf("stack id:   %s\n", rec.StackID)
	fmt.Printf("status:     %s\n", rec.Status)
	fmt.Printf("digest:     %s\n", rec.TemplateDigest)
	fmt.Printf("created:    %s\n", rec.CreatedAt)
	fmt.Printf("updated:    %s\n", rec.UpdatedAt)
	if rec.LastError != "" {
		fmt.Printf("last error: %s\n", rec.LastError)
	}
	printSortedMap("parameters", rec.Parameters)
	printSortedMap("outputs", rec.Outputs)
	printSortedMap("exports", rec.Exports)
	return nil
}

func printSortedMap(title string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, m[k])
	}
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
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

	if !st.Remove(args[0]) {
		return fmt.Errorf("no deployment record for stage %q", args[0])
	}
	st.Serial++

	if err := proj.backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(proj.dir, auditEntry{
		Operation: "state.rm",
		Project:   proj.manifest.Project,
		Changes:   []auditChange{{Stage: args[0], Action: "forget"}},
	})

	fmt.Printf("Forgot stage %q. The stack was not deleted.\n", args[0])
	return nil
}
