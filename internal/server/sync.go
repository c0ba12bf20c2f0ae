package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/guestlytics/insight-go/internal/indexer"
	"github.com/guestlytics/insight-go/internal/logging"
)

// handleSyncRun handles POST /api/sync/run. It kicks off one sync cycle in
// the background and returns immediately. A cycle already in progress yields
// 409 Conflict rather than a second concurrent run.
func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync is not configured on this server"})
		return
	}
	if s.syncer.Status().IsRunning {
		writeJSON(w, http.StatusConflict, syncRunResponse{Started: false, Status: s.syncer.Status()})
		return
	}

	// The run outlives the request; detach it from the request context but
	// keep the request logger for correlation.
	ctx := logging.WithLogger(context.Background(), log)
	go func() {
		if err := s.syncer.RunSync(ctx); err != nil && !errors.Is(err, indexer.ErrSyncRunning) {
			log.Error("sync run failed", slog.Any("error", err))
		}
	}()

	writeJSON(w, http.StatusAccepted, syncRunResponse{Started: true, Status: s.syncer.Status()})
}

// handleSyncStatus handles GET /api/sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync is not configured on this server"})
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.Status())
}
