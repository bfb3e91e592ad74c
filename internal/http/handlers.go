// Package http is the serving surface: handlers for weather lookup, workflow
// invocation, topology export, and health, plus the middleware stack around
// them.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/traffic"
	"github.com/mfukuda/weathergraph/internal/workflow"
)

// HealthConfig holds the thresholds the health handler evaluates. A nil
// config skips the error-rate check and only probes the API key.
type HealthConfig struct {
	// DegradedWindow and DegradedErrorPct mark the service degraded when
	// errors/(successes+errors) within the window reaches the percentage.
	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// Handler holds dependencies for the HTTP handlers. One compiled workflow
// serves all requests.
type Handler struct {
	wf           *workflow.Workflow
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil logger is replaced with a no-op
// logger.
func NewHandler(wf *workflow.Workflow, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		wf:           wf,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles GET /weather/{city}: one workflow invocation with the
// path segment as the city hint. State errors map onto HTTP statuses by
// error kind.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(mux.Vars(r)["city"])
	if city == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", "city is required")
		return
	}

	out, err := h.wf.Invoke(r.Context(), workflow.State{City: city})
	if err != nil {
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Debug("workflow aborted", zap.Error(err))
		}
		return
	}

	if out.Failed() {
		h.recordOutcome(out.ErrKind)
		status, code := kindToStatus(out.ErrKind)
		writeError(w, r, status, code, out.Err)
		return
	}

	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, out.Result())
}

// invokeRequest is the POST /invoke body: any subset of the workflow state's
// input fields.
type invokeRequest struct {
	Messages []workflow.Message `json:"messages"`
	Query    string             `json:"query"`
	City     string             `json:"city"`
}

// PostInvoke handles POST /invoke. Mirroring the workflow contract, handled
// failures come back as a 200 with an error-status envelope; HTTP error
// codes are reserved for transport-level problems.
func (h *Handler) PostInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	out, err := h.wf.Invoke(r.Context(), workflow.State{
		Messages: req.Messages,
		Query:    req.Query,
		City:     req.City,
	})
	if err != nil {
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to run workflow")
		return
	}

	if out.Failed() {
		h.recordOutcome(out.ErrKind)
	} else {
		traffic.RecordSuccess()
	}
	writeJSON(w, http.StatusOK, out.Result())
}

// GetGraph handles GET /graph: the compiled workflow topology as JSON, or
// Mermaid with ?format=mermaid.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	topo := h.wf.Describe()

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, topo)
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(topo.ToMermaid()))
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or mermaid")
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	switch result.reason {
	case "api_key_missing":
		checks["weatherApi"] = "unconfigured"
	case "api_key_invalid", "error_rate_breach":
		checks["weatherApi"] = "unhealthy"
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weathergraph",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down, then missing or invalid credentials, then error-rate
// breach, then healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}

	probe := h.wf.Client()
	if probe == nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_missing"}
	}
	if err := probe.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}

	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}

	return healthResult{"healthy", http.StatusOK, ""}
}

// recordOutcome classifies a state error for the health window. Caller
// mistakes (bad input, unknown city) say nothing about service health and
// stay out of the error rate entirely.
func (h *Handler) recordOutcome(kind string) {
	switch client.ErrorCategory(kind) {
	case client.ErrorCategoryValidation, client.ErrorCategoryCityNotFound:
	default:
		traffic.RecordError()
	}
}

// kindToStatus maps a state error kind to the HTTP status and stable error
// code for GET /weather.
func kindToStatus(kind string) (int, string) {
	switch client.ErrorCategory(kind) {
	case client.ErrorCategoryValidation:
		return http.StatusBadRequest, "INVALID_CITY"
	case client.ErrorCategoryCityNotFound:
		return http.StatusNotFound, "CITY_NOT_FOUND"
	default:
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in request
// context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
