package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mfukuda/weathergraph/internal/client"
	"github.com/mfukuda/weathergraph/internal/models"
	"github.com/mfukuda/weathergraph/internal/traffic"
	"github.com/mfukuda/weathergraph/internal/workflow"
)

type mockWeatherClient struct {
	report      models.Report
	err         error
	validateErr error
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.Report, error) {
	return m.report, m.err
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

func tokyoReport() models.Report {
	return models.Report{
		Temperature: 18.5,
		FeelsLike:   17.2,
		Humidity:    45,
		Pressure:    1013,
		Description: "晴天",
		WindSpeed:   3.6,
		Visibility:  10000,
		CityName:    "東京",
		Country:     "JP",
	}
}

// newTestHandler builds a handler over a workflow bound to the mock client.
func newTestHandler(t *testing.T, mock *mockWeatherClient, healthCfg *HealthConfig) *Handler {
	t.Helper()
	wf, err := workflow.New(workflow.Configuration{APIKey: "test-api-key"},
		workflow.WithClient(mock), workflow.WithCityExtraction())
	if err != nil {
		t.Fatalf("workflow.New() error = %v", err)
	}
	logger, _ := zap.NewDevelopment()
	return NewHandler(wf, healthCfg, logger)
}

// serveWeather routes one GET /weather/{city} request through the handler.
func serveWeather(h *Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	ctx := context.WithValue(req.Context(), "correlation_id", "test-correlation-id")
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	router := mux.NewRouter()
	router.HandleFunc("/weather/{city}", h.GetWeather)
	router.ServeHTTP(w, req)
	return w
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	errObj, ok := resp["error"]
	if !ok {
		t.Fatalf("error body missing error field: %v", resp)
	}
	return errObj
}

// TestHandler_GetWeather_Success verifies a successful lookup returns the
// result envelope with weather data and the Japanese summary.
func TestHandler_GetWeather_Success(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	w := serveWeather(h, "/weather/Tokyo")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var res workflow.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != workflow.StatusSuccess {
		t.Errorf("Status = %q, want success", res.Status)
	}
	if res.Weather == nil || res.Weather.CityName != "東京" {
		t.Errorf("Weather = %+v, want 東京 report", res.Weather)
	}
	if !strings.Contains(res.Message, "東京の現在の天気") {
		t.Errorf("Message = %q, want Japanese summary", res.Message)
	}
	if _, total := traffic.ErrorRate(healthTestWindow); total != 1 {
		t.Errorf("traffic total = %d, want 1 success recorded", total)
	}
}

// TestHandler_GetWeather_EmptyCity verifies a whitespace city is rejected
// before the workflow runs.
func TestHandler_GetWeather_EmptyCity(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	w := serveWeather(h, "/weather/%20%20%20")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	errObj := decodeErrorBody(t, w)
	if errObj["code"] != "INVALID_CITY" {
		t.Errorf("code = %q, want INVALID_CITY", errObj["code"])
	}
	if errObj["requestId"] != "test-correlation-id" {
		t.Errorf("requestId = %q, want correlation id", errObj["requestId"])
	}
}

// TestHandler_GetWeather_ErrorMapping verifies state error kinds map onto
// HTTP statuses and stable codes.
func TestHandler_GetWeather_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		clientErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "city not found",
			clientErr:  client.ErrCityNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "CITY_NOT_FOUND",
		},
		{
			name:       "invalid api key",
			clientErr:  client.ErrInvalidAPIKey,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:       "upstream failure",
			clientErr:  client.ErrUpstreamFailure,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:       "provider rate limited",
			clientErr:  client.ErrRateLimited,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			h := newTestHandler(t, &mockWeatherClient{err: tt.clientErr}, nil)

			w := serveWeather(h, "/weather/Tokyo")

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			errObj := decodeErrorBody(t, w)
			if errObj["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errObj["code"], tt.wantCode)
			}
			if errObj["message"] == "" {
				t.Error("message empty, want the state error text")
			}
		})
	}
}

// TestHandler_GetWeather_CityNotFoundMessage verifies the body carries the
// Japanese guidance from the workflow state.
func TestHandler_GetWeather_CityNotFoundMessage(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{err: client.ErrCityNotFound}, nil)

	w := serveWeather(h, "/weather/Tokio")

	errObj := decodeErrorBody(t, w)
	if !strings.Contains(errObj["message"], "が見つかりません") {
		t.Errorf("message = %q, want Japanese not-found text", errObj["message"])
	}
}

// TestHandler_GetWeather_CallerMistakesNotInErrorRate verifies 404-class
// outcomes stay out of the health error rate while upstream failures count.
func TestHandler_GetWeather_CallerMistakesNotInErrorRate(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(t, &mockWeatherClient{err: client.ErrCityNotFound}, nil)
	serveWeather(h, "/weather/Nowhere")

	if errs, _ := traffic.ErrorRate(healthTestWindow); errs != 0 {
		t.Errorf("errors = %d, want 0 for city-not-found", errs)
	}

	traffic.Reset()
	h = newTestHandler(t, &mockWeatherClient{err: client.ErrUpstreamFailure}, nil)
	serveWeather(h, "/weather/Tokyo")

	if errs, _ := traffic.ErrorRate(healthTestWindow); errs != 1 {
		t.Errorf("errors = %d, want 1 for upstream failure", errs)
	}
}

// TestHandler_PostInvoke_Query verifies a free-text invocation returns the
// success envelope through the extraction stage.
func TestHandler_PostInvoke_Query(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	body := strings.NewReader(`{"query": "東京の天気を教えて"}`)
	req := httptest.NewRequest("POST", "/invoke", body)
	w := httptest.NewRecorder()

	router := mux.NewRouter()
	router.HandleFunc("/invoke", h.PostInvoke).Methods("POST")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var res workflow.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != workflow.StatusSuccess {
		t.Errorf("Status = %q, want success (%s)", res.Status, res.Err)
	}
	if res.City != "東京" {
		t.Errorf("City = %q, want extracted 東京", res.City)
	}
}

// TestHandler_PostInvoke_Messages verifies conversational input reaches the
// workflow.
func TestHandler_PostInvoke_Messages(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	body := strings.NewReader(`{"messages": [{"role": "user", "content": "weather in Tokyo"}]}`)
	req := httptest.NewRequest("POST", "/invoke", body)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.PostInvoke).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res workflow.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != workflow.StatusSuccess {
		t.Errorf("Status = %q, want success (%s)", res.Status, res.Err)
	}
}

// TestHandler_PostInvoke_StateErrorIs200 verifies handled workflow failures
// keep the invoke contract: HTTP 200 with an error-status envelope.
func TestHandler_PostInvoke_StateErrorIs200(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	body := strings.NewReader(`{"query": "tell me something nice"}`)
	req := httptest.NewRequest("POST", "/invoke", body)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.PostInvoke).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for handled failure", w.Code)
	}
	var res workflow.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != workflow.StatusError {
		t.Errorf("Status = %q, want error", res.Status)
	}
	if res.Err == "" {
		t.Error("Err empty, want extraction failure text")
	}
}

// TestHandler_PostInvoke_BadBody verifies malformed JSON is a transport
// error, not a workflow invocation.
func TestHandler_PostInvoke_BadBody(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	req := httptest.NewRequest("POST", "/invoke", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	http.HandlerFunc(h.PostInvoke).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	errObj := decodeErrorBody(t, w)
	if errObj["code"] != "INVALID_BODY" {
		t.Errorf("code = %q, want INVALID_BODY", errObj["code"])
	}
}

// TestHandler_GetGraph verifies topology export in both formats.
func TestHandler_GetGraph(t *testing.T) {
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	req := httptest.NewRequest("GET", "/graph", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetGraph).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var topo struct {
		Name  string   `json:"name"`
		Entry string   `json:"entry"`
		Nodes []string `json:"nodes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&topo); err != nil {
		t.Fatalf("decode topology: %v", err)
	}
	if topo.Name != workflow.GraphName {
		t.Errorf("name = %q, want %q", topo.Name, workflow.GraphName)
	}
	if topo.Entry != workflow.StageExtractCity {
		t.Errorf("entry = %q, want extract_city", topo.Entry)
	}
	if len(topo.Nodes) != 2 {
		t.Errorf("nodes = %v, want two stages", topo.Nodes)
	}

	req = httptest.NewRequest("GET", "/graph?format=mermaid", nil)
	w = httptest.NewRecorder()
	http.HandlerFunc(h.GetGraph).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("mermaid status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !strings.HasPrefix(body, "graph TD") {
		t.Errorf("mermaid body = %q, want graph TD prefix", body)
	}

	req = httptest.NewRequest("GET", "/graph?format=dot", nil)
	w = httptest.NewRecorder()
	http.HandlerFunc(h.GetGraph).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", w.Code)
	}
}

const healthTestWindow = 60 * time.Second

// TestHandler_GetHealth_Healthy verifies the happy path reports healthy with
// the provider check passing.
func TestHandler_GetHealth_Healthy(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, &HealthConfig{
		DegradedWindow:   healthTestWindow,
		DegradedErrorPct: 50,
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetHealth).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]interface{})
	if checks["weatherApi"] != "healthy" {
		t.Errorf("checks.weatherApi = %v, want healthy", checks["weatherApi"])
	}
}

// TestHandler_GetHealth_ShuttingDown verifies the drain flag takes priority
// over every other check.
func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetHealth).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", resp["status"])
	}
}

// TestHandler_GetHealth_InvalidAPIKey verifies a failing key probe reports
// degraded.
func TestHandler_GetHealth_InvalidAPIKey(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(t, &mockWeatherClient{validateErr: client.ErrInvalidAPIKey}, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetHealth).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]interface{})
	if checks["weatherApi"] != "unhealthy" {
		t.Errorf("checks.weatherApi = %v, want unhealthy", checks["weatherApi"])
	}
}

// TestHandler_GetHealth_MissingAPIKey verifies a workflow with no provider
// client reports degraded with an unconfigured check.
func TestHandler_GetHealth_MissingAPIKey(t *testing.T) {
	t.Setenv(workflow.EnvAPIKey, "")
	wf, err := workflow.New(workflow.Configuration{})
	if err != nil {
		t.Fatalf("workflow.New() error = %v", err)
	}
	h := NewHandler(wf, nil, zap.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetHealth).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	checks, _ := resp["checks"].(map[string]interface{})
	if checks["weatherApi"] != "unconfigured" {
		t.Errorf("checks.weatherApi = %v, want unconfigured", checks["weatherApi"])
	}
}

// TestHandler_GetHealth_ErrorRateBreach verifies the error-rate window flips
// health to degraded once the threshold is crossed.
func TestHandler_GetHealth_ErrorRateBreach(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	for i := 0; i < 3; i++ {
		traffic.RecordError()
	}
	traffic.RecordSuccess()

	h := newTestHandler(t, &mockWeatherClient{report: tokyoReport()}, &HealthConfig{
		DegradedWindow:   healthTestWindow,
		DegradedErrorPct: 50,
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	http.HandlerFunc(h.GetHealth).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 at 75%% errors", w.Code)
	}
	var resp map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

// TestHandler_GetHealth_TransitionLogged verifies a status change emits the
// transition log entry.
func TestHandler_GetHealth_TransitionLogged(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	core, logs := observer.New(zap.InfoLevel)
	mock := &mockWeatherClient{report: tokyoReport()}
	wf, err := workflow.New(workflow.Configuration{APIKey: "test-api-key"}, workflow.WithClient(mock))
	if err != nil {
		t.Fatalf("workflow.New() error = %v", err)
	}
	h := NewHandler(wf, &HealthConfig{DegradedWindow: healthTestWindow, DegradedErrorPct: 50}, zap.New(core))

	req := httptest.NewRequest("GET", "/health", nil)
	http.HandlerFunc(h.GetHealth).ServeHTTP(httptest.NewRecorder(), req)

	traffic.RecordError()
	traffic.RecordError()
	http.HandlerFunc(h.GetHealth).ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition log entries = %d, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["previous_status"] != "healthy" || ctx["current_status"] != "degraded" {
		t.Errorf("transition = %v -> %v, want healthy -> degraded", ctx["previous_status"], ctx["current_status"])
	}
}

// TestKindToStatus verifies the kind mapping table.
func TestKindToStatus(t *testing.T) {
	tests := []struct {
		kind       string
		wantStatus int
		wantCode   string
	}{
		{string(client.ErrorCategoryValidation), http.StatusBadRequest, "INVALID_CITY"},
		{string(client.ErrorCategoryCityNotFound), http.StatusNotFound, "CITY_NOT_FOUND"},
		{string(client.ErrorCategoryInvalidAPIKey), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{string(client.ErrorCategoryTimeout), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{string(client.ErrorCategoryUpstream5xx), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"", http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
	}
	for _, tt := range tests {
		status, code := kindToStatus(tt.kind)
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("kindToStatus(%q) = (%d, %s), want (%d, %s)", tt.kind, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}
