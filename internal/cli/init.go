package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stagehand-io/stagehand/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a new stagehand project",
	Long: `Creates a stagehand.yaml manifest and a templates/ directory with
starter CloudFormation templates for the four stages: network, container,
service, and pipeline. Existing files are never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(viper.GetString("dir"))
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}

	projectName := filepath.Base(dir)
	if len(args) > 0 {
		projectName = args[0]
	}

	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0755); err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".stagehand"), 0755); err != nil {
		return fmt.Errorf("failed to create .stagehand directory: %w", err)
	}

	files := map[string]string{
		manifest.DefaultManifestFile: fmt.Sprintf(scaffoldManifest, projectName),
		"templates/network.yaml":     scaffoldNetwork,
		"templates/container.yaml":   scaffoldContainer,
		"templates/service.yaml":     scaffoldService,
		"templates/pipeline.yaml":    scaffoldPipeline,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Skipped %s (already exists)\n", name)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		fmt.Printf("Created %s\n", name)
	}

	fmt.Println("\nProject initialized.")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit stagehand.yaml and the templates under templates/")
	fmt.Println("  2. Run 'stagehand validate' to check the manifest and stage order")
	fmt.Println("  3. Run 'stagehand plan' to see what will be created")
	fmt.Println("  4. Run 'stagehand deploy' to create the stacks")

	return nil
}
