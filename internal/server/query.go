package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/logging"
)

// handleQuery handles POST /api/query. It runs the full answering pipeline
// (intent parsing, retrieval, tool calls, model generation) and returns the
// final answer as JSON.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}
	if req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queriesInFlight.Inc()
	defer s.metrics.queriesInFlight.Dec()

	start := time.Now()
	res, err := s.answerer.Run(ctx, nil, req.Question, agent.CallContext{
		TenantID:         req.TenantID,
		UserID:           req.UserID,
		DefaultStartDate: req.StartDate,
		DefaultEndDate:   req.EndDate,
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			status = http.StatusGatewayTimeout
		}
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		log.Error("query failed",
			slog.String("tenant_id", req.TenantID),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.queryDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())
	log.Info("query answered",
		slog.String("tenant_id", req.TenantID),
		slog.Duration("duration", elapsed),
		slog.Int("tools_used", len(res.ToolsUsed)),
	)

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:     res.FinalAnswer,
		ToolsUsed:  res.ToolsUsed,
		DurationMS: elapsed.Milliseconds(),
	})
}
