// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/coursehub/portal/pkg/passkey"
)

// BotVerifier checks a client-supplied bot-verification token before a
// registration challenge is issued. Implementations live outside this
// package (the portal's CAPTCHA provider).
type BotVerifier interface {
	Verify(ctx context.Context, token string) error
}

// Notifier receives lifecycle events for out-of-band notification, such as
// mailing the user when a new passkey is added to their account. Errors are
// the notifier's problem; ceremony outcomes never depend on it.
type Notifier interface {
	CredentialRegistered(ctx context.Context, userID, email string)
}

// Handler provides HTTP handlers for the passkey ceremonies.
// The handlers can be mounted on any HTTP router.
type Handler struct {
	service     *passkey.Service
	logger      *slog.Logger
	botVerifier BotVerifier
	notifier    Notifier
	onVerifyErr func(ceremony string, err error)
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithBotVerifier enables bot-token checking on registration challenges.
func (h *Handler) WithBotVerifier(v BotVerifier) *Handler {
	h.botVerifier = v
	return h
}

// WithNotifier enables registration notifications.
func (h *Handler) WithNotifier(n Notifier) *Handler {
	h.notifier = n
	return h
}

// WithVerificationFailureHook installs an observer invoked whenever a
// ceremony fails verification. The hook sees the real error; the HTTP
// response stays generic. Used to feed failure metrics.
func (h *Handler) WithVerificationFailureHook(hook func(ceremony string, err error)) *Handler {
	h.onVerifyErr = hook
	return h
}

// RegistrationChallenge handles POST /registration/challenge
//
// Request body:
//
//	{
//	    "userId": "portal-user-id",
//	    "email": "s1234567@example.edu"
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions, wrapped in
// {"publicKey": {...}}.
func (h *Handler) RegistrationChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req RegistrationChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.UserID == "" || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "userId and email are required")
		return
	}

	if h.botVerifier != nil {
		if err := h.botVerifier.Verify(r.Context(), req.BotToken); err != nil {
			h.logger.Info("bot verification rejected registration challenge",
				"user_id", req.UserID,
				"error", err)
			h.writeError(w, http.StatusBadRequest, ErrorCodeBotCheckFailed, "bot verification failed")
			return
		}
	}

	options, err := h.service.IssueRegistrationChallenge(r.Context(), req.UserID, req.Email)
	if err != nil {
		h.handleServiceError(w, "registration", err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// CompleteRegistration handles POST /registration/complete
//
// Request body:
//
//	{
//	    "userId": "portal-user-id",
//	    "email": "s1234567@example.edu",
//	    "attestationResponse": { ... },
//	    "expectedChallenge": "base64url-challenge"
//	}
//
// Response: {"success": true}
func (h *Handler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req CompleteRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.UserID == "" || req.Email == "" || req.ExpectedChallenge == "" || len(req.AttestationResponse) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest,
			"userId, email, attestationResponse and expectedChallenge are required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.AttestationResponse))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	if err := h.service.CompleteRegistration(r.Context(), req.UserID, req.Email, response, req.ExpectedChallenge); err != nil {
		h.handleServiceError(w, "registration", err)
		return
	}

	if h.notifier != nil {
		h.notifier.CredentialRegistered(r.Context(), req.UserID, req.Email)
	}

	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// AuthenticationChallenge handles POST /authentication/challenge
//
// Request body:
//
//	{
//	    "email": "s1234567@example.edu"
//	}
//
// Response: {"publicKey": {...}, "userId": "portal-user-id"}
func (h *Handler) AuthenticationChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req AuthenticationChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	options, userID, err := h.service.IssueAuthenticationChallenge(r.Context(), req.Email)
	if err != nil {
		h.handleServiceError(w, "authentication", err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthenticationChallengeResponse{
		PublicKey: options.Response,
		UserID:    userID,
	})
}

// CompleteAuthentication handles POST /authentication/complete
//
// Request body:
//
//	{
//	    "userId": "portal-user-id",
//	    "assertionResponse": { ... },
//	    "expectedChallenge": "base64url-challenge"
//	}
//
// Response: {"success": true, "userId": "portal-user-id", "token": "..."}
func (h *Handler) CompleteAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req CompleteAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.UserID == "" || req.ExpectedChallenge == "" || len(req.AssertionResponse) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest,
			"userId, assertionResponse and expectedChallenge are required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.AssertionResponse))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	userID, token, err := h.service.CompleteAuthentication(r.Context(), req.UserID, response, req.ExpectedChallenge)
	if err != nil {
		h.handleServiceError(w, "authentication", err)
		return
	}

	h.writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		UserID:  userID,
		Token:   token,
	})
}

// handleServiceError maps service errors to HTTP responses. Verification
// failures all collapse to one generic message; the specific failing check
// stays in the server log.
func (h *Handler) handleServiceError(w http.ResponseWriter, ceremony string, err error) {
	switch {
	case passkey.IsInput(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	case passkey.IsDuplicateCredential(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeDuplicateCredential, "credential already registered")
	case passkey.IsLookup(err):
		code := ErrorCodeNoCredentials
		message := "no registered credentials"
		if errors.Is(err, passkey.ErrUserNotFound) {
			code = ErrorCodeUserNotFound
			message = "user not found"
		}
		h.writeError(w, http.StatusNotFound, code, message)
	case passkey.IsVerification(err):
		if h.onVerifyErr != nil {
			h.onVerifyErr(ceremony, err)
		}
		h.writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
