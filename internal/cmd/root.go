// Package cmd implements the kiln command line.
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/Iron-Ham/kiln/internal/cmd/configcmd"
	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Monorepo task orchestrator",
	Long: `kiln runs build, dev, test, lint and type-check tasks across the
projects of a workspace.

Plugins contribute steps to each task. Steps run concurrently within a
group, in dependency order, and the progress of the whole run is shown in
one place. Long-running steps such as dev servers keep running after the
run finishes and can be switched between.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./kiln.yaml, then $XDG_CONFIG_HOME/kiln/config.yaml)")
	flags.Int("concurrency", 0, "maximum steps running at once per group (0 = number of CPUs)")
	flags.String("log-level", "info", "terminal verbosity: errors, warnings, info, debug")
	flags.String("interactive", "auto", "redraw a live progress section: auto, always, never")
	flags.String("metrics-file", "", "write Prometheus metrics of the run to this file")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("run.concurrency", flags.Lookup("concurrency"))
	_ = viper.BindPFlag("run.log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("run.interactive", flags.Lookup("interactive"))
	_ = viper.BindPFlag("metrics.textfile_path", flags.Lookup("metrics-file"))

	registerTaskCmds(rootCmd)
	registerStepsCmd(rootCmd)
	registerLogsCmd(rootCmd)
	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if _, err := os.Stat(config.ProjectConfigName + ".yaml"); err == nil {
		viper.SetConfigFile(config.ProjectConfigName + ".yaml")
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("KILN")
	// e.g. KILN_RUN_LOG_LEVEL for run.log_level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
