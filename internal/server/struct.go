package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/indexer"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout is the maximum duration for a single /api/query request,
	// covering retrieval, tool calls, and model generation.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics. If nil a
	// fresh registry is created so tests never pollute the global default.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Must gather the same
	// metrics that MetricsRegistry registers.
	MetricsGatherer prometheus.Gatherer
}

// Answerer is the interface handleQuery calls to answer a question.
// *agent.Runtime satisfies it; tests inject a fake.
type Answerer interface {
	// Run answers userMessage for the caller identified by call, using prior
	// conversation turns from history.
	Run(ctx context.Context, history []*schema.Message, userMessage string, call agent.CallContext) (*agent.Result, error)
}

var _ Answerer = (*agent.Runtime)(nil)

// SyncRunner is the interface the sync endpoints call to trigger and inspect
// background indexing. *indexer.Worker satisfies it.
type SyncRunner interface {
	// RunSync executes one full sync cycle, or returns
	// [indexer.ErrSyncRunning] when a cycle is already in progress.
	RunSync(ctx context.Context) error
	// Status returns a snapshot of the current sync state.
	Status() indexer.SyncStatus
}

// Server is the HTTP server that exposes the insight engine.
type Server struct {
	// answerer handles /api/query requests.
	answerer Answerer
	// syncer handles /api/sync/* requests. May be nil when the server runs
	// without a background indexer; the sync endpoints then return 503.
	syncer SyncRunner
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TenantID identifies the hotel project the question is about.
	TenantID string `json:"tenant_id"`
	// UserID identifies the person asking, used for memory personalization.
	UserID string `json:"user_id,omitempty"`
	// StartDate and EndDate (YYYY-MM-DD) set the default reporting period
	// for tools when the question names no timeframe.
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the assistant's final natural-language answer.
	Answer string `json:"answer"`
	// ToolsUsed lists the distinct tool names invoked while answering.
	ToolsUsed []string `json:"tools_used,omitempty"`
	// DurationMS is the wall-clock time spent answering, in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// errorResponse is the JSON error body for all API endpoints.
type errorResponse struct {
	// Error is a human-readable failure description.
	Error string `json:"error"`
}

// syncRunResponse is the JSON response for POST /api/sync/run.
type syncRunResponse struct {
	// Started is true when a new sync cycle was kicked off.
	Started bool `json:"started"`
	// Status is the sync state snapshot taken after the trigger.
	Status indexer.SyncStatus `json:"status"`
}
