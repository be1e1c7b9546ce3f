// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for passkey operations.
var (
	// ErrInvalidInput is returned when a required request field is missing
	// or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound is returned when no identity matches the given handle.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrCredentialNotFound is returned when an assertion references a
	// credential the user does not own.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when a credential id is already
	// registered, for any user.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrChallengeMismatch is returned when the echoed challenge does not
	// match the one issued for this user and ceremony.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrChallengeExpired is returned when the ceremony completes after the
	// challenge validity window.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrOriginMismatch is returned when the client data origin does not
	// match a configured relying-party origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrRelyingPartyMismatch is returned when the authenticator data RP ID
	// hash does not match the configured relying party.
	ErrRelyingPartyMismatch = errors.New("relying party mismatch")

	// ErrMalformedResponse is returned when an authenticator response cannot
	// be parsed into the expected ceremony shape.
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrSignatureInvalid is returned when the assertion signature does not
	// verify against the stored public key.
	ErrSignatureInvalid = errors.New("assertion signature invalid")

	// ErrClonedAuthenticator is returned when the reported signature counter
	// did not advance past the stored value, indicating a replayed assertion
	// or a cloned authenticator.
	ErrClonedAuthenticator = errors.New("possible cloned authenticator detected")

	// ErrVerificationFailed is returned for ceremony verification failures
	// that do not map to a more specific sentinel.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrStoreFailure is returned when the credential store fails to read or
	// write. The ceremony must be restarted from challenge issuance.
	ErrStoreFailure = errors.New("credential store failure")
)

// PasskeyError wraps an error with the operation that produced it.
type PasskeyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *PasskeyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PasskeyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *PasskeyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new PasskeyError with the given operation and error.
func NewError(op string, err error) error {
	return &PasskeyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsInput returns true if the error indicates a caller mistake in the
// request itself.
func IsInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsLookup returns true if the error indicates a missing user or credential.
func IsLookup(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrCredentialNotFound)
}

// IsVerification returns true if the error is a terminal ceremony
// verification failure. Callers surfacing these externally must use a
// generic message; the specific kind is for operator logs only.
func IsVerification(err error) bool {
	return errors.Is(err, ErrChallengeMismatch) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrOriginMismatch) ||
		errors.Is(err, ErrRelyingPartyMismatch) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrClonedAuthenticator) ||
		errors.Is(err, ErrVerificationFailed)
}

// IsStore returns true if the error indicates a persistence failure.
func IsStore(err error) bool {
	return errors.Is(err, ErrStoreFailure)
}

// IsDuplicateCredential returns true if the error indicates the credential
// id is already registered.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}
