// Weathergraph CLI - weather lookup workflow, HTTP service, and graph export.
package main

import (
	"os"

	"github.com/mfukuda/weathergraph/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
