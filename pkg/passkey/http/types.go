// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
)

// RegistrationChallengeRequest is the request body for issuing a
// registration challenge.
type RegistrationChallengeRequest struct {
	// UserID is the portal user id (required).
	UserID string `json:"userId"`

	// Email is the user's login handle (required).
	Email string `json:"email"`

	// BotToken is an optional bot-verification token, checked when the
	// handler is configured with a BotVerifier.
	BotToken string `json:"botToken,omitempty"`
}

// AuthenticationChallengeRequest is the request body for issuing an
// authentication challenge.
type AuthenticationChallengeRequest struct {
	// Email is the user's login handle (required).
	Email string `json:"email"`
}

// AuthenticationChallengeResponse carries the assertion options together
// with the resolved user id, which the client echoes on completion.
type AuthenticationChallengeResponse struct {
	PublicKey protocol.PublicKeyCredentialRequestOptions `json:"publicKey"`
	UserID    string                                     `json:"userId"`
}

// CompleteRegistrationRequest is the request body for completing
// registration.
type CompleteRegistrationRequest struct {
	// UserID is the portal user id (required).
	UserID string `json:"userId"`

	// Email is the user's login handle (required).
	Email string `json:"email"`

	// AttestationResponse is the authenticator's attestation, verbatim as
	// produced by the client credential API.
	AttestationResponse json.RawMessage `json:"attestationResponse"`

	// ExpectedChallenge is the challenge the client was issued, echoed
	// back base64url-encoded.
	ExpectedChallenge string `json:"expectedChallenge"`
}

// CompleteAuthenticationRequest is the request body for completing
// authentication.
type CompleteAuthenticationRequest struct {
	// UserID is the portal user id from the challenge response (required).
	UserID string `json:"userId"`

	// AssertionResponse is the authenticator's signed assertion, verbatim
	// as produced by the client credential API.
	AssertionResponse json.RawMessage `json:"assertionResponse"`

	// ExpectedChallenge is the challenge the client was issued, echoed
	// back base64url-encoded.
	ExpectedChallenge string `json:"expectedChallenge"`
}

// SuccessResponse is the response after a successful completion.
type SuccessResponse struct {
	Success bool `json:"success"`

	// UserID is set on successful authentication.
	UserID string `json:"userId,omitempty"`

	// Token is set on successful authentication when the service has a
	// token issuer configured.
	Token string `json:"token,omitempty"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeBotCheckFailed      = "bot_check_failed"
	ErrorCodeUserNotFound        = "user_not_found"
	ErrorCodeNoCredentials       = "no_credentials"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeInternalError       = "internal_error"
)
