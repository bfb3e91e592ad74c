package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/graph"
	"github.com/mfukuda/weathergraph/internal/observability"
)

// Stage names as they appear in the graph, metrics, and exports.
const (
	GraphName         = "weather_graph"
	StageExtractCity  = "extract_city"
	StageFetchWeather = "fetch_weather"
)

// Workflow is a compiled weather lookup graph bound to one resolved
// Configuration. Immutable after New; safe for concurrent Invoke.
type Workflow struct {
	cfg      Configuration
	client   client.WeatherClient
	runnable *graph.Runnable[State]
	logger   *zap.Logger
}

type options struct {
	client     client.WeatherClient
	logger     *zap.Logger
	extraction bool
}

// Option configures a Workflow at construction.
type Option func(*options)

// WithCityExtraction prepends the extract_city stage so free-text queries
// resolve to a city before fetching. A caller-provided city hint still skips
// extraction.
func WithCityExtraction() Option {
	return func(o *options) {
		o.extraction = true
	}
}

// WithLogger sets the workflow's logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClient overrides the provider client. When set, the configuration's
// API key is not used to build one.
func WithClient(c client.WeatherClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// New resolves the configuration, builds the provider client when an API key
// is available, and compiles the stage graph. A missing API key is not a
// construction error: the workflow still builds and reports the missing
// credential in each invocation's state.
func New(cfg Configuration, opts ...Option) (*Workflow, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	w := &Workflow{
		cfg:    ResolveConfiguration(cfg),
		logger: o.logger,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}

	switch {
	case o.client != nil:
		w.client = o.client
	case w.cfg.APIKey != "":
		c, err := client.NewOpenWeatherClientWithLocale(
			w.cfg.APIKey, w.cfg.BaseURL, w.cfg.Timeout, w.cfg.Units, w.cfg.Language)
		if err != nil {
			return nil, fmt.Errorf("build weather client: %w", err)
		}
		w.client = c
	}

	g := graph.New[State](GraphName, graph.WithStageHook[State](w.observeStage))
	if err := buildStages(g, w, o.extraction); err != nil {
		return nil, err
	}

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	w.runnable = runnable

	return w, nil
}

func buildStages(g *graph.StateGraph[State], w *Workflow, extraction bool) error {
	if err := g.AddNode(StageFetchWeather, w.fetchWeather); err != nil {
		return err
	}
	if err := g.AddEdge(StageFetchWeather, graph.END); err != nil {
		return err
	}

	if !extraction {
		return g.SetEntryPoint(StageFetchWeather)
	}

	if err := g.AddNode(StageExtractCity, w.extractCity); err != nil {
		return err
	}
	if err := g.AddEdge(StageExtractCity, StageFetchWeather); err != nil {
		return err
	}
	return g.SetEntryPoint(StageExtractCity)
}

// Invoke runs the workflow on the given state. Handled failure classes
// (validation, credentials, provider errors, parsing) come back inside the
// state; the returned error is reserved for engine-level interruption such
// as context cancellation.
func (w *Workflow) Invoke(ctx context.Context, s State) (State, error) {
	start := time.Now()
	out, err := w.runnable.Invoke(ctx, s.withResolvedInput())
	elapsed := time.Since(start)

	if err != nil {
		observability.WorkflowInvocationsTotal.WithLabelValues("aborted").Inc()
		w.logger.Warn("workflow aborted",
			zap.String("city", s.City),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return out, err
	}

	if out.Failed() {
		observability.WorkflowInvocationsTotal.WithLabelValues("error").Inc()
		observability.WorkflowErrorsTotal.WithLabelValues(out.ErrKind).Inc()
		w.logger.Info("workflow completed with state error",
			zap.String("city", out.City),
			zap.String("kind", out.ErrKind),
			zap.Duration("duration", elapsed),
		)
		return out, nil
	}

	observability.WorkflowInvocationsTotal.WithLabelValues("success").Inc()
	observability.RecordCityQuery(out.City)
	w.logger.Info("workflow completed",
		zap.String("city", out.City),
		zap.Duration("duration", elapsed),
	)
	return out, nil
}

func (w *Workflow) observeStage(stage string, elapsed time.Duration, err error) {
	observability.WorkflowStageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	w.logger.Debug("stage complete",
		zap.String("stage", stage),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
}

// Describe exports the compiled graph topology.
func (w *Workflow) Describe() graph.Topology {
	return w.runnable.Describe()
}

// Client exposes the provider client for health probes; nil when no API key
// was resolved.
func (w *Workflow) Client() client.WeatherClient {
	return w.client
}

// Configuration returns the resolved configuration the workflow was built
// with.
func (w *Workflow) Configuration() Configuration {
	return w.cfg
}
