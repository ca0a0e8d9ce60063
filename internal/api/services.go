package api

import (
	"context"
	"net/http"
	"time"
)

// commandTimeout bounds an operator command's SensorThings round trip.
const commandTimeout = 30 * time.Second

// handleRefreshAll forces one poll fetch and re-evaluates every entity.
// Running it repeatedly is harmless; concurrent calls coalesce into at
// most one extra fetch.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.manager.RefreshAll(ctx); err != nil {
		s.logger.Warn("refresh-all command failed", "error", err)
		writeUpstreamError(w, "refresh failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "refreshed",
	})
}

// handleReconnectPush tears down and re-establishes the push channel.
// Repeating the command still leaves exactly one live connection. A
// broker that stays unreachable is reported but leaves the bridge in
// poll-only operation, same as at startup.
func (s *Server) handleReconnectPush(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.manager.ReconnectPush(ctx); err != nil {
		s.logger.Warn("reconnect-push command failed", "error", err)
		writeUpstreamError(w, "reconnect failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reconnected",
	})
}

// handleHealth probes every registered component and reports per-component
// status. Any failing component degrades the overall status but the
// endpoint itself still answers 200; orchestrators read the body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		if err := hc.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
		} else {
			components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
