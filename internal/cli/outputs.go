package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var outputsStage string

var outputsCmd = &cobra.Command{
	Use:   "outputs [name]",
	Short: "Print deployed stack outputs",
	Long: `Prints the outputs recorded for the deployed stacks. With a name
argument, prints just that output's value, suitable for shell substitution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutputs,
}

func init() {
	outputsCmd.Flags().StringVar(&outputsStage, "stage", "", "Show outputs of a single stage")
}

func runOutputs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	values := st.Outputs
	if outputsStage != "" {
		rec := st.Record(outputsStage)
		if rec == nil {
			return fmt.Errorf("stage %q has no deployment record", outputsStage)
		}
		values = rec.Outputs
	}

	if len(args) == 1 {
		v, ok := values[args[0]]
		if !ok {
			return fmt.Errorf("output %q not found", args[0])
		}
		fmt.Println(v)
		return nil
	}

	if len(values) == 0 {
		fmt.Println("No outputs recorded. Deploy first.")
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, values[k])
	}
	return nil
}
