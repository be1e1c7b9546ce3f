// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"encoding/json"
	"net/http"

	"github.com/coursehub/portal/pkg/health"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// HealthHandler handles GET /health requests. It is an alias for the
// liveness probe kept for load balancers that only speak /health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	s.LivenessHandler(w, r)
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness probes determine if the service is alive and should be
// restarted. This endpoint only fails if the process is in an
// unrecoverable state.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "service is alive",
		}, http.StatusOK)
		return
	}

	result := s.checker.Live(r.Context())

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, statusCode)
}

// ReadinessHandler handles GET /health/ready requests.
//
// Readiness fails when a dependency (the credential store) is
// unavailable, taking the instance out of rotation without restarting it.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "service is ready",
		}, http.StatusOK)
		return
	}

	results := s.checker.Ready(r.Context())
	overall := health.AggregateStatus(results)

	resp := HealthCheckResponse{
		Status: overall,
		Checks: results,
	}

	switch overall {
	case health.StatusHealthy:
		resp.Message = "all checks passed"
	case health.StatusDegraded:
		resp.Message = "service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "one or more checks failed"
	}

	statusCode := http.StatusOK
	if overall == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// StartupHandler handles GET /health/startup requests.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "service has started",
		}, http.StatusOK)
		return
	}

	result := s.checker.Startup(r.Context())

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, errorBody{Error: code, Message: message}, statusCode)
}
