package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Output the stage dependency graph in DOT format",
	Long: `Generates the stage dependency graph in Graphviz DOT format.
Pipe the output to 'dot' to generate an image:

  stagehand graph | dot -Tpng > graph.png`,
	RunE: runGraphCmd,
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	proj, err := loadProject()
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(proj.stages)
	if err != nil {
		return err
	}

	fmt.Println("digraph stagehand {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, name := range graph.DeployOrder() {
		fmt.Printf("  %q;\n", name)
	}
	fmt.Println()

	for _, name := range graph.DeployOrder() {
		for _, dep := range graph.Dependencies(name) {
			fmt.Printf("  %q -> %q;\n", name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
