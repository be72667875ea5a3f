package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
	"github.com/stagehand-io/stagehand/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest and stage templates",
	Long: `Parses the manifest and every stage template, resolves the
dependency graph, and lints cross-stack references. No AWS calls are made.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	proj, err := loadProject()
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(proj.stages)
	if err != nil {
		return err
	}
	order := graph.DeployOrder()

	var lintFailed bool
	for _, lintErr := range manifest.LintStackNameParameters(proj.stages, order) {
		fmt.Printf("\033[33mwarning:\033[0m %v\n", lintErr)
		lintFailed = true
	}

	fmt.Printf("Manifest OK: %d stage(s) in project %q\n", len(proj.stages), proj.manifest.Project)
	fmt.Printf("Deploy order:   %s\n", strings.Join(order, " -> "))
	fmt.Printf("Teardown order: %s\n", strings.Join(graph.TeardownOrder(), " -> "))

	if lintFailed {
		return fmt.Errorf("validation completed with warnings")
	}
	return nil
}
