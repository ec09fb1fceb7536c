package api

import (
	"context"
	"net/http"
	"sort"
)

// Health statuses
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

const rootMessage = "Discord Bot is running!"

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// handleRoot answers the liveness check
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootMessage))
}

// handleHealth pings every dependency and reports 503 if any fails
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.config.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.HealthTimeout)
		defer cancel()
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:  StatusHealthy,
		Service: "whale-role-bot",
		Checks:  make(map[string]string, len(names)),
	}

	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			resp.Status = StatusDegraded
			resp.Checks[name] = "error: " + err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
