package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stagehand-io/stagehand/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Staged CloudFormation deployments",
	Long: `Stagehand deploys a containerized service as an ordered set of
CloudFormation stacks: network, container registry, service, and delivery
pipeline. Each stage is a plain CloudFormation template; stagehand orders
them by their exports and imports, deploys independent stages in parallel,
and tears everything down in exact reverse order.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(viper.GetString("log-level"))
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("dir", "C", ".", "Project directory containing "+`stagehand.yaml`)
	pf.String("region", "", "AWS region (overrides the manifest)")
	pf.String("profile", "", "AWS shared config profile (overrides the manifest)")
	pf.String("driver", "cloudformation", "Stack driver to use (cloudformation, memory)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.SetEnvPrefix("STAGEHAND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"dir", "region", "profile", "driver", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(outputsCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
