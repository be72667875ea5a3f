package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stagehand-io/stagehand/internal/companion"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Lint the build files the pipeline depends on",
	Long: `Checks the repository files CloudFormation never validates but the
pipeline needs at build and deploy time: the Dockerfile, buildspec.yml, and
imagedefinitions.json when one is present. Problems here surface as build or
deploy failures long after the stacks are green.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(viper.GetString("dir"))
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}

	hasPipeline := false
	if proj, err := loadProject(); err == nil {
		for _, stage := range proj.stages {
			if stage.Name == "pipeline" {
				hasPipeline = true
			}
		}
	}

	findings := companion.Check(dir, hasPipeline)
	if len(findings) == 0 {
		fmt.Println("Build files look good.")
		return nil
	}

	for _, f := range findings {
		fmt.Printf("\033[33m%s\033[0m\n", f)
	}
	return fmt.Errorf("%d problem(s) found", len(findings))
}
