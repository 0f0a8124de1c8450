// Package configcmd provides the "kiln config" commands.
package configcmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View kiln configuration",
	Long: `View kiln configuration.

Without arguments, displays the effective configuration: defaults, the
config file and KILN_* environment variables merged together.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a kiln.yaml in the current directory",
	RunE:  runConfigInit,
}

// Register adds the config commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(w, ui.Muted.Render("# Config file: "+used))
	} else {
		fmt.Fprintln(w, ui.Muted.Render("# Config file: (none - using defaults)"))
	}
	return writeYAML(w, cfg)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "Active config: %s\n", used)
	} else {
		fmt.Fprintln(w, "Active config: (none)")
	}

	fmt.Fprintln(w, "\nSearch paths:")
	fmt.Fprintf(w, "  1. --config flag\n")
	fmt.Fprintf(w, "  2. ./%s.yaml (current directory)\n", config.ProjectConfigName)
	fmt.Fprintf(w, "  3. %s\n", config.ConfigFile())
	fmt.Fprintln(w, "\nEnvironment variables: KILN_* (e.g., KILN_RUN_LOG_LEVEL)")
	return nil
}

const configTemplate = `# kiln configuration

workspace:
  # name: my-monorepo
  root: .
  projects:
    - name: web
      kind: web-app
      commands:
        - id: Bundle
          task: build
          run: npm run build
        - id: Serve
          task: dev
          run: npm run dev
          indefinite: true
          watch: ["src/**/*.ts"]
        - id: Lint
          task: lint
          run: npm run lint

run:
  # Maximum steps running at once per group (0 = number of CPUs)
  concurrency: 0
  # Terminal verbosity: errors, warnings, info, debug
  log_level: info
  # Live progress section: auto, always, never
  interactive: auto

logging:
  # Write a JSON debug log to .kiln/logs/debug.log
  enabled: false
  level: info
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.ProjectConfigName + ".yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
