package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mfukuda/weathergraph/internal/observability"
)

// RouterConfig carries the per-route policies applied when assembling the
// router.
type RouterConfig struct {
	// RequestTimeout bounds the workflow routes (/weather, /invoke).
	RequestTimeout time.Duration
	// RateLimiter shapes the workflow routes; nil disables limiting.
	RateLimiter *rate.Limiter
}

// NewRouter assembles the full route table with the middleware stack. Health
// and metrics stay outside the rate limiter so probes keep working under
// load shedding.
func NewRouter(h *Handler, logger *zap.Logger, rc RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.HandleFunc("/graph", h.GetGraph).Methods("GET")

	weather := router.PathPrefix("/weather").Subrouter()
	weather.Use(RateLimitMiddleware(rc.RateLimiter))
	if rc.RequestTimeout > 0 {
		weather.Use(TimeoutMiddleware(rc.RequestTimeout))
	}
	weather.HandleFunc("/{city}", h.GetWeather).Methods("GET")

	invoke := router.PathPrefix("/invoke").Subrouter()
	invoke.Use(RateLimitMiddleware(rc.RateLimiter))
	if rc.RequestTimeout > 0 {
		invoke.Use(TimeoutMiddleware(rc.RequestTimeout))
	}
	invoke.HandleFunc("", h.PostInvoke).Methods("POST")

	return router
}
