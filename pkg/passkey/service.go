// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Service provides passkey challenge issuance, ceremony verification, and
// credential lifecycle operations.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	identities IdentityStore
	challenges ChallengeStore
	creds      CredentialStore
	tokens     TokenIssuer // optional
	logger     *slog.Logger
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// Identities resolves email handles to users (required).
	Identities IdentityStore

	// Challenges holds ceremony state between issue and complete (required).
	Challenges ChallengeStore

	// Credentials is the credential persistence layer (required).
	Credentials CredentialStore

	// Tokens is an optional post-authentication token issuer.
	Tokens TokenIssuer

	// Logger receives ceremony diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		identities: params.Identities,
		challenges: params.Challenges,
		creds:      params.Credentials,
		tokens:     params.Tokens,
		logger:     logger,
	}, nil
}

// CompleteRegistration validates a client attestation response against the
// challenge issued to this user and persists the new credential.
//
// The stored challenge is consumed whether verification succeeds or fails; a
// client must request a fresh challenge after any failure. A second
// submission of the same attestation fails with ErrDuplicateCredential
// rather than creating a second record.
func (s *Service) CompleteRegistration(ctx context.Context, userID, email string, response *protocol.ParsedCredentialCreationData, expectedChallenge string) error {
	if userID == "" || email == "" || expectedChallenge == "" {
		return NewError("complete registration", ErrInvalidInput)
	}
	if response == nil {
		return NewError("complete registration", ErrMalformedResponse)
	}

	record, err := s.challenges.Consume(ctx, userID, PurposeRegistration)
	if err != nil {
		return WrapError("consume challenge", err)
	}
	if expectedChallenge != record.Challenge {
		return NewError("complete registration", ErrChallengeMismatch)
	}

	existing, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return WrapError("get credentials", storeErr(err))
	}

	user := &ceremonyUser{user: User{ID: userID, Email: email}, creds: existing}
	credential, err := s.webauthn.CreateCredential(user, record.Session, response)
	if err != nil {
		s.logger.Info("registration verification failed",
			"challenge_id", record.ID,
			"user_id", userID,
			"error", err)
		return classifyVerificationError("create credential", err)
	}

	cred := newCredential(userID, credential)
	if err := s.creds.Save(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			return WrapError("save credential", err)
		}
		return WrapError("save credential", storeErr(err))
	}

	s.logger.Info("credential registered",
		"user_id", userID,
		"sign_count", cred.SignCount,
		"transports", len(cred.Transports))

	return nil
}

// CompleteAuthentication validates a signed assertion against a stored
// credential, enforcing challenge freshness and the monotonic-counter replay
// check. On success it returns the user id and, when a TokenIssuer is
// configured, a freshly minted token.
//
// The counter rule: an authenticator that reports 0 against a stored 0 is
// accepted and left at 0 (authenticators without counters). In every other
// case the new counter must strictly exceed the stored value or the call
// fails with ErrClonedAuthenticator and the stored counter is untouched.
func (s *Service) CompleteAuthentication(ctx context.Context, userID string, response *protocol.ParsedCredentialAssertionData, expectedChallenge string) (string, string, error) {
	if userID == "" || expectedChallenge == "" {
		return "", "", NewError("complete authentication", ErrInvalidInput)
	}
	if response == nil {
		return "", "", NewError("complete authentication", ErrMalformedResponse)
	}

	creds, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return "", "", WrapError("get credentials", storeErr(err))
	}
	if len(creds) == 0 {
		return "", "", NewError("complete authentication", ErrNoCredentials)
	}

	var matched *Credential
	for _, cred := range creds {
		if bytes.Equal(cred.ID, response.RawID) {
			matched = cred
			break
		}
	}
	if matched == nil {
		return "", "", NewError("complete authentication", ErrCredentialNotFound)
	}

	record, err := s.challenges.Consume(ctx, userID, PurposeAuthentication)
	if err != nil {
		return "", "", WrapError("consume challenge", err)
	}
	if expectedChallenge != record.Challenge {
		return "", "", NewError("complete authentication", ErrChallengeMismatch)
	}

	user := &ceremonyUser{user: User{ID: userID}, creds: creds}
	validated, err := s.webauthn.ValidateLogin(user, record.Session, response)
	if err != nil {
		s.logger.Info("authentication verification failed",
			"challenge_id", record.ID,
			"user_id", userID,
			"error", err)
		return "", "", classifyVerificationError("validate login", err)
	}

	// The library flags any counter that failed to advance, exempting the
	// zero/zero no-counter case. A flagged assertion is rejected outright
	// and the stored counter stays put.
	if validated.Authenticator.CloneWarning {
		s.logger.Warn("signature counter did not advance",
			"user_id", userID,
			"stored_count", matched.SignCount,
			"reported_count", validated.Authenticator.SignCount)
		return "", "", NewError("counter check", ErrClonedAuthenticator)
	}

	newCount := validated.Authenticator.SignCount
	if newCount == 0 && matched.SignCount == 0 {
		// No-counter authenticator. Re-read the stored value before
		// accepting: a concurrent login may have advanced it past zero
		// since the credential list was loaded, and a zero assertion is
		// stale against any advanced counter.
		current, err := s.creds.GetByCredentialID(ctx, matched.ID)
		if err != nil {
			return "", "", WrapError("recheck counter", storeErr(err))
		}
		if current.SignCount != 0 {
			s.logger.Warn("zero signature counter raced a concurrent login",
				"user_id", userID,
				"stored_count", current.SignCount)
			return "", "", NewError("counter check", ErrClonedAuthenticator)
		}
	} else {
		// Compare-and-set against the store, not against the copy read
		// above: a concurrent authentication may have advanced the counter
		// since, in which case this assertion is stale and rejected.
		if err := s.creds.UpdateCounter(ctx, matched.ID, newCount); err != nil {
			if errors.Is(err, ErrClonedAuthenticator) {
				s.logger.Warn("signature counter raced a concurrent login",
					"user_id", userID,
					"reported_count", newCount)
				return "", "", WrapError("update counter", err)
			}
			return "", "", WrapError("update counter", storeErr(err))
		}
	}

	var token string
	if s.tokens != nil {
		token, err = s.tokens.Issue(ctx, User{ID: userID})
		if err != nil {
			return "", "", WrapError("issue token", err)
		}
	}

	s.logger.Info("authentication completed",
		"user_id", userID,
		"sign_count", newCount)

	return userID, token, nil
}

// Enable marks passkey login available for a user. A user is enabled purely
// by owning at least one credential, so this is a no-op trigger kept for
// interface symmetry with Disable.
func (s *Service) Enable(ctx context.Context, userID string) error {
	if userID == "" {
		return NewError("enable", ErrInvalidInput)
	}
	return nil
}

// Disable revokes passkey login for a user by deleting all of their
// credentials. Idempotent: revoking a user with no credentials succeeds.
func (s *Service) Disable(ctx context.Context, userID string) error {
	if userID == "" {
		return NewError("disable", ErrInvalidInput)
	}
	if err := s.creds.DeleteByUserID(ctx, userID); err != nil {
		return WrapError("delete credentials", storeErr(err))
	}
	s.logger.Info("credentials revoked", "user_id", userID)
	return nil
}

// Enabled reports whether a user has at least one registered credential.
func (s *Service) Enabled(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, NewError("enabled", ErrInvalidInput)
	}
	creds, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return false, WrapError("get credentials", storeErr(err))
	}
	return len(creds) > 0, nil
}

// Credentials retrieves all credentials registered to a user.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*Credential, error) {
	if userID == "" {
		return nil, NewError("credentials", ErrInvalidInput)
	}
	creds, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return nil, WrapError("get credentials", storeErr(err))
	}
	return creds, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// storeErr maps unexpected persistence errors onto ErrStoreFailure while
// passing through this package's sentinels untouched.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrDuplicateCredential,
		ErrCredentialNotFound,
		ErrClonedAuthenticator,
		ErrUserNotFound,
		ErrChallengeMismatch,
		ErrChallengeExpired,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}

// classifyVerificationError maps go-webauthn verification errors onto this
// package's sentinels so callers can log the specific failure kind. All of
// these classify as IsVerification; external responses must stay generic.
// The machine-readable error type decides where it is specific enough; the
// library reports some distinct failures under one generic type, so those
// fall back to inspecting the error text.
func classifyVerificationError(op string, err error) error {
	sentinel := ErrVerificationFailed

	var perr *protocol.Error
	if errors.As(err, &perr) {
		switch perr.Type {
		case protocol.ErrChallengeMismatch.Type:
			sentinel = ErrChallengeMismatch
		case "origin_mismatch":
			sentinel = ErrOriginMismatch
		case "invalid_signature":
			sentinel = ErrSignatureInvalid
		case protocol.ErrParsingData.Type, protocol.ErrBadRequest.Type:
			sentinel = ErrMalformedResponse
		default:
			sentinel = classifyDetail(perr.Details + " " + perr.DevInfo)
		}
	} else {
		sentinel = classifyDetail(err.Error())
	}

	return NewError(op, fmt.Errorf("%w: %v", sentinel, err))
}

func classifyDetail(detail string) error {
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "challenge"):
		return ErrChallengeMismatch
	case strings.Contains(lower, "origin"):
		return ErrOriginMismatch
	case strings.Contains(lower, "relying party"), strings.Contains(lower, "rp id"),
		strings.Contains(lower, "rp hash"), strings.Contains(lower, "rpid"):
		return ErrRelyingPartyMismatch
	case strings.Contains(lower, "signature"):
		return ErrSignatureInvalid
	case strings.Contains(lower, "parse"), strings.Contains(lower, "unmarshal"), strings.Contains(lower, "decode"):
		return ErrMalformedResponse
	}
	return ErrVerificationFailed
}
