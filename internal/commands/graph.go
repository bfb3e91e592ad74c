package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfukuda/weathergraph/internal/workflow"
)

var (
	graphFormat         string
	graphOutput         string
	graphWithExtraction bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Workflow graph operations",
	Long:  `Commands for working with the compiled workflow graph, including exporting to visualization formats.`,
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the workflow graph to a visualization format",
	Long: `Export the compiled workflow graph to Mermaid or JSON format.

Examples:
  weathergraph graph export
  weathergraph graph export --format json
  weathergraph graph export --with-extraction --output graph.md`,
	Args: cobra.NoArgs,
	RunE: runGraphExport,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphExportCmd)

	graphExportCmd.Flags().StringVar(&graphFormat, "format", "mermaid", "Output format: mermaid, json")
	graphExportCmd.Flags().StringVar(&graphOutput, "output", "", "Output file (default: stdout)")
	graphExportCmd.Flags().BoolVar(&graphWithExtraction, "with-extraction", false, "Include the free-text extraction stage")
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	var opts []workflow.Option
	if graphWithExtraction {
		opts = append(opts, workflow.WithCityExtraction())
	}
	wf, err := workflow.New(workflow.Configuration{}, opts...)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}
	topo := wf.Describe()

	var output []byte
	switch graphFormat {
	case "mermaid":
		output = []byte(topo.ToMermaid())
	case "json":
		data, err := topo.ToJSON()
		if err != nil {
			return fmt.Errorf("generate JSON: %w", err)
		}
		output = data
	default:
		return fmt.Errorf("unsupported format: %s (use 'mermaid' or 'json')", graphFormat)
	}

	if graphOutput != "" {
		if err := os.WriteFile(graphOutput, output, 0644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph exported to %s\n", graphOutput)
	} else {
		fmt.Fprint(cmd.OutOrStdout(), string(output))
	}

	return nil
}
