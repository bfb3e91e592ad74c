// Package commands wires the weathergraph CLI: a weather lookup command, the
// HTTP service, and graph export utilities.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weathergraph",
	Short: "Weather lookup workflow over OpenWeatherMap",
	Long: `weathergraph runs a staged weather lookup workflow: city in, current
weather out, with descriptions localized to Japanese. It can answer a single
lookup from the command line, serve the workflow over HTTP, or export the
workflow graph for documentation.`,
	SilenceUsage: true,
}

// Execute runs the root command. The returned error has already been printed
// by cobra; callers only need the exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Populate the environment from .env before any command resolves
	// configuration. A missing file is fine.
	cobra.OnInitialize(func() { _ = godotenv.Load() })
}
