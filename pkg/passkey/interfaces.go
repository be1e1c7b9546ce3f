// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"context"
)

// IdentityStore resolves login handles to portal users. It is implemented by
// the portal's identity system; this package only reads from it.
type IdentityStore interface {
	// LookupByEmail resolves an email handle to a user.
	// Returns ErrUserNotFound if no user matches.
	LookupByEmail(ctx context.Context, email string) (User, error)
}

// CredentialStore manages registered credential persistence.
type CredentialStore interface {
	// Save inserts a new credential. The store must enforce global
	// credential-id uniqueness at insert time and return
	// ErrDuplicateCredential on conflict; a prior read-check is not
	// sufficient against concurrent registrations.
	Save(ctx context.Context, cred *Credential) error

	// GetByUserID retrieves all credentials for a user.
	// Returns an empty slice if the user has none.
	GetByUserID(ctx context.Context, userID string) ([]*Credential, error)

	// GetByCredentialID retrieves a credential by its id.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error)

	// UpdateCounter advances the signature counter to newCount, atomically
	// and only if the currently stored value is strictly lower. Returns
	// ErrClonedAuthenticator when the stored value was already >= newCount
	// and ErrCredentialNotFound when the credential does not exist. The
	// compare-and-set discipline closes the race between two concurrent
	// authentications of the same credential.
	UpdateCounter(ctx context.Context, credID []byte, newCount uint32) error

	// Delete removes a credential by its id.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Delete(ctx context.Context, credID []byte) error

	// DeleteByUserID removes all credentials for a user. Deleting zero rows
	// is not an error.
	DeleteByUserID(ctx context.Context, userID string) error
}

// ChallengeStore holds ceremony state between challenge issuance and
// completion. Challenges are short-lived (60-120 seconds) and single-use.
type ChallengeStore interface {
	// Put stores the record for (record.UserID, record.Purpose), replacing
	// any previously issued challenge for that pair. Only the most recently
	// issued challenge is valid.
	Put(ctx context.Context, record *ChallengeRecord) error

	// Consume removes and returns the record for (userID, purpose).
	// Returns ErrChallengeMismatch when no challenge is outstanding and
	// ErrChallengeExpired when the record exists but is past its validity
	// window. The record is removed in every case: verification failure
	// retires a challenge just like success does.
	Consume(ctx context.Context, userID string, purpose Purpose) (*ChallengeRecord, error)
}

// TokenIssuer is an optional hook for minting a token after successful
// authentication. If not provided, completion returns only the user id.
type TokenIssuer interface {
	// Issue creates a token for the authenticated user.
	Issue(ctx context.Context, user User) (string, error)
}
