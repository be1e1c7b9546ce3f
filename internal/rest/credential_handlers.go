// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coursehub/portal/pkg/passkey"
)

// CredentialSummary is the admin view of a registered passkey. Key material
// is omitted; the credential ID alone identifies the authenticator.
type CredentialSummary struct {
	ID          string     `json:"id"`
	Transports  []string   `json:"transports,omitempty"`
	BackedUp    bool       `json:"backedUp"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	SignCounter uint32     `json:"signCounter"`
}

// ListCredentialsResponse is returned by GET /users/{userID}/credentials.
type ListCredentialsResponse struct {
	UserID      string              `json:"userId"`
	Enabled     bool                `json:"enabled"`
	Credentials []CredentialSummary `json:"credentials"`
}

// ListCredentialsHandler handles GET /api/v1/users/{userID}/credentials.
func (s *Server) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, "invalid_request", "userID is required", http.StatusBadRequest)
		return
	}

	creds, err := s.service.Credentials(r.Context(), userID)
	if err != nil {
		s.writeCredentialError(w, err)
		return
	}

	resp := ListCredentialsResponse{
		UserID:      userID,
		Enabled:     len(creds) > 0,
		Credentials: make([]CredentialSummary, 0, len(creds)),
	}
	for _, c := range creds {
		summary := CredentialSummary{
			ID:          base64.RawURLEncoding.EncodeToString(c.ID),
			BackedUp:    c.Flags.BackupState,
			CreatedAt:   c.CreatedAt,
			SignCounter: c.SignCount,
		}
		for _, t := range c.Transports {
			summary.Transports = append(summary.Transports, string(t))
		}
		if !c.LastUsedAt.IsZero() {
			lastUsed := c.LastUsedAt
			summary.LastUsedAt = &lastUsed
		}
		resp.Credentials = append(resp.Credentials, summary)
	}

	writeJSON(w, resp, http.StatusOK)
}

// RevokeCredentialsHandler handles DELETE /api/v1/users/{userID}/credentials.
// It removes every passkey the user has registered, disabling passkey login
// until they enroll again.
func (s *Server) RevokeCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, "invalid_request", "userID is required", http.StatusBadRequest)
		return
	}

	if err := s.service.Disable(r.Context(), userID); err != nil {
		s.writeCredentialError(w, err)
		return
	}

	s.logger.Info("revoked all passkeys", "user_id", userID)
	writeJSON(w, map[string]bool{"success": true}, http.StatusOK)
}

func (s *Server) writeCredentialError(w http.ResponseWriter, err error) {
	switch {
	case passkey.IsInput(err):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case passkey.IsLookup(err):
		writeJSONError(w, "user_not_found", "user not found", http.StatusNotFound)
	default:
		s.logger.Error("credential admin operation failed", "error", err)
		writeJSONError(w, "internal_error", "internal server error", http.StatusInternalServerError)
	}
}
