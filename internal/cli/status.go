package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand-io/stagehand/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deployment status of every stage",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := loadProject()
	if err != nil {
		return err
	}

	st, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	graph, err := engine.BuildGraph(proj.stages)
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s (state serial %d)\n\n", proj.manifest.Project, st.Serial)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tSTACK\tSTATUS\tUPDATED\tERROR")
	for _, name := range graph.DeployOrder() {
		rec := st.Record(name)
		if rec == nil {
			stage := stageByName(proj, name)
			fmt.Fprintf(w, "%s\t%s\t%s\t\t\n", name, stage, "not deployed")
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name, rec.StackName, rec.Status,
			rec.UpdatedAt.Local().Format(time.RFC3339), rec.LastError)
	}
	for _, rec := range st.Records {
		if !stageInManifest(proj, rec.Stage) {
			fmt.Fprintf(w, "%s\t%s\t%s (removed from manifest)\t%s\t%s\n",
				rec.Stage, rec.StackName, rec.Status,
				rec.UpdatedAt.Local().Format(time.RFC3339), rec.LastError)
		}
	}
	return w.Flush()
}

func stageByName(proj *project, name string) string {
	for _, s := range proj.stages {
		if s.Name == name {
			return s.StackName
		}
	}
	return ""
}

func stageInManifest(proj *project, name string) bool {
	for _, s := range proj.stages {
		if s.Name == name {
			return true
		}
	}
	return false
}
