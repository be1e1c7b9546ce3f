// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// IssueRegistrationChallenge starts a registration ceremony for an existing
// portal user. It returns the creation options the client authenticator
// needs (relying-party info, user info, a fresh challenge, attestation and
// authenticator-selection policy, timeout) and binds the challenge to the
// user for the configured validity window.
//
// The caller must echo the returned challenge back in CompleteRegistration.
func (s *Service) IssueRegistrationChallenge(ctx context.Context, userID, email string) (*protocol.CredentialCreation, error) {
	if userID == "" || email == "" {
		return nil, NewError("issue registration challenge", ErrInvalidInput)
	}

	// Existing credentials become the exclude list so the client does not
	// re-register an authenticator the user already owns.
	existing, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return nil, WrapError("get credentials", storeErr(err))
	}

	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		excludeList[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transports,
		}
	}

	user := &ceremonyUser{user: User{ID: userID, Email: email}, creds: existing}
	options, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	if err := s.stashChallenge(ctx, userID, PurposeRegistration, session); err != nil {
		return nil, err
	}

	return options, nil
}

// IssueAuthenticationChallenge starts an authentication ceremony for the
// user identified by email. It returns the assertion options (relying-party
// id, fresh challenge, allow-list of the user's credential ids with
// transport hints, user-verification preference) together with the resolved
// user id.
//
// Returns ErrUserNotFound when the email resolves to no user and
// ErrNoCredentials when the user has nothing registered; the caller should
// fall back to another login path in that case.
func (s *Service) IssueAuthenticationChallenge(ctx context.Context, email string) (*protocol.CredentialAssertion, string, error) {
	if email == "" {
		return nil, "", NewError("issue authentication challenge", ErrInvalidInput)
	}

	user, err := s.identities.LookupByEmail(ctx, email)
	if err != nil {
		return nil, "", WrapError("lookup user", err)
	}

	creds, err := s.creds.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, "", WrapError("get credentials", storeErr(err))
	}
	if len(creds) == 0 {
		return nil, "", NewError("issue authentication challenge", ErrNoCredentials)
	}

	options, session, err := s.webauthn.BeginLogin(&ceremonyUser{user: user, creds: creds})
	if err != nil {
		return nil, "", WrapError("begin login", err)
	}

	if err := s.stashChallenge(ctx, user.ID, PurposeAuthentication, session); err != nil {
		return nil, "", err
	}

	return options, user.ID, nil
}

// stashChallenge binds the ceremony session to (user, purpose) for the
// configured validity window, replacing any earlier outstanding challenge.
func (s *Service) stashChallenge(ctx context.Context, userID string, purpose Purpose, session *webauthn.SessionData) error {
	now := time.Now().UTC()
	record := &ChallengeRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		Challenge: session.Challenge,
		Session:   *session,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.ChallengeTTL),
	}

	if err := s.challenges.Put(ctx, record); err != nil {
		return WrapError("store challenge", storeErr(err))
	}

	s.logger.Debug("challenge issued",
		"challenge_id", record.ID,
		"user_id", userID,
		"purpose", string(purpose),
		"expires_at", record.ExpiresAt)

	return nil
}
