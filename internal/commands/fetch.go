package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mfukuda/weathergraph/internal/models"
	"github.com/mfukuda/weathergraph/internal/observability"
	"github.com/mfukuda/weathergraph/internal/workflow"
)

var (
	fetchQuery   string
	fetchAPIKey  string
	fetchBaseURL string
	fetchTimeout time.Duration
	fetchJSON    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [city...]",
	Short: "Fetch the current weather for a city",
	Long: `Fetch the current weather for a city and print a Japanese report.

The city can be given directly (multi-word names need no quoting), or
extracted from a free-text query with --query. The API key comes from
--api-key or OPENWEATHER_API_KEY.

Examples:
  weathergraph fetch Tokyo
  weathergraph fetch New York
  weathergraph fetch --query "東京の天気を教えて"
  weathergraph fetch --query "weather in Paris" --json`,
	Args: cobra.ArbitraryArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchQuery, "query", "q", "", "Free-text query to extract the city from")
	fetchCmd.Flags().StringVar(&fetchAPIKey, "api-key", "", "OpenWeatherMap API key (default: OPENWEATHER_API_KEY)")
	fetchCmd.Flags().StringVar(&fetchBaseURL, "base-url", "", "Current-weather endpoint override")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "Provider call timeout (default 15s)")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print the result envelope as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewCLILogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	state := workflow.State{
		Query: fetchQuery,
		City:  strings.TrimSpace(strings.Join(args, " ")),
	}
	if state.City == "" && state.Query == "" {
		return errors.New("provide a city argument or --query")
	}

	opts := []workflow.Option{workflow.WithLogger(logger)}
	if state.City == "" {
		opts = append(opts, workflow.WithCityExtraction())
	}
	wf, err := workflow.New(workflow.Configuration{
		APIKey:  fetchAPIKey,
		BaseURL: fetchBaseURL,
		Timeout: fetchTimeout,
	}, opts...)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	out, err := wf.Invoke(cmd.Context(), state)
	if err != nil {
		return fmt.Errorf("invoke: %w", err)
	}

	if fetchJSON {
		data, err := json.MarshalIndent(out.Result(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		if out.Failed() {
			return errSilentFailure
		}
		return nil
	}

	if out.Failed() {
		return errors.New(out.Err)
	}
	displayReport(cmd.OutOrStdout(), *out.Weather)
	return nil
}

// errSilentFailure makes the process exit nonzero after the failure has
// already been printed as JSON.
var errSilentFailure = errors.New("lookup failed")

// displayReport prints the Japanese summary line followed by one line per
// attribute.
func displayReport(w io.Writer, r models.Report) {
	fmt.Fprintln(w, r.Summary())
	fmt.Fprintf(w, "都市:     %s (%s)\n", displayCityName(r.CityName), r.Country)
	fmt.Fprintf(w, "天気:     %s\n", r.Description)
	fmt.Fprintf(w, "気温:     %.1f°C\n", r.Temperature)
	fmt.Fprintf(w, "体感温度: %.1f°C\n", r.FeelsLike)
	fmt.Fprintf(w, "湿度:     %d%%\n", r.Humidity)
	fmt.Fprintf(w, "気圧:     %d hPa\n", r.Pressure)
	fmt.Fprintf(w, "風速:     %.1f m/s\n", r.WindSpeed)
	fmt.Fprintf(w, "視程:     %d m\n", r.Visibility)
}

// displayCityName title-cases Latin city names so lowercase input reads
// well; non-Latin names pass through unchanged.
func displayCityName(name string) string {
	return cases.Title(language.English, cases.NoLower).String(name)
}
