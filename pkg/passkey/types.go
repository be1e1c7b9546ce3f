// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is the identity the ceremonies operate on. It is owned by the
// portal's identity system; this package reads it and never mutates it.
type User struct {
	// ID is the stable portal user id.
	ID string `json:"id"`

	// Email is the user's login handle.
	Email string `json:"email"`

	// DisplayName is an optional human-readable name. Falls back to Email.
	DisplayName string `json:"display_name,omitempty"`
}

// Credential represents one registered authenticator stored by the portal.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Globally unique across all users.
	ID []byte `json:"id"`

	// UserID is the portal user this credential belongs to.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used ("none" here).
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports hinted by the client ("usb",
	// "internal", ...). Advisory only.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// Flags contains authenticator capability flags observed at registration.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the signature counter used for clone detection. Mutated
	// exclusively by the authentication ceremony, through
	// CredentialStore.UpdateCounter.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// toWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) toWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// newCredential creates a Credential from the go-webauthn library's type.
func newCredential(userID string, wc *webauthn.Credential) *Credential {
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		AAGUID:    wc.Authenticator.AAGUID,
		SignCount: wc.Authenticator.SignCount,
		CreatedAt: time.Now().UTC(),
	}
}

// Purpose identifies which ceremony a challenge was issued for.
type Purpose string

const (
	// PurposeRegistration marks a challenge issued for credential creation.
	PurposeRegistration Purpose = "registration"

	// PurposeAuthentication marks a challenge issued for assertion.
	PurposeAuthentication Purpose = "authentication"
)

// ChallengeRecord is the ephemeral per-ceremony state held between challenge
// issuance and completion. It is consumed at most once; both successful and
// failed verification retire it.
type ChallengeRecord struct {
	// ID identifies the record in operator logs.
	ID string

	// UserID is the user the ceremony was issued for.
	UserID string

	// Purpose is the ceremony kind the challenge is valid for.
	Purpose Purpose

	// Challenge is the base64url-encoded challenge exactly as sent to the
	// client. Completion requires byte equality with what the client echoes.
	Challenge string

	// Session is the library session state needed to verify the response.
	Session webauthn.SessionData

	// IssuedAt and ExpiresAt bound the validity window.
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its validity window.
func (r *ChallengeRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ceremonyUser adapts a portal User plus their stored credentials to the
// webauthn.User interface the library verifies against.
type ceremonyUser struct {
	user  User
	creds []*Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.user.Email
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.user.DisplayName == "" {
		return u.user.Email
	}
	return u.user.DisplayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = c.toWebAuthn()
	}
	return creds
}
