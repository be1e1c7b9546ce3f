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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasskeyError(t *testing.T) {
	err := NewError("complete authentication", ErrChallengeMismatch)

	assert.Equal(t, "complete authentication: challenge mismatch", err.Error())
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	var perr *PasskeyError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, "complete authentication", perr.Op)
}

func TestPasskeyError_NoOp(t *testing.T) {
	err := &PasskeyError{Err: ErrUserNotFound}
	assert.Equal(t, "user not found", err.Error())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("op", nil))

	wrapped := WrapError("op", ErrStoreFailure)
	assert.ErrorIs(t, wrapped, ErrStoreFailure)
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err          error
		input        bool
		lookup       bool
		verification bool
		store        bool
		duplicate    bool
	}{
		{err: ErrInvalidInput, input: true},
		{err: ErrUserNotFound, lookup: true},
		{err: ErrNoCredentials, lookup: true},
		{err: ErrCredentialNotFound, lookup: true},
		{err: ErrDuplicateCredential, duplicate: true},
		{err: ErrChallengeMismatch, verification: true},
		{err: ErrChallengeExpired, verification: true},
		{err: ErrOriginMismatch, verification: true},
		{err: ErrRelyingPartyMismatch, verification: true},
		{err: ErrMalformedResponse, verification: true},
		{err: ErrSignatureInvalid, verification: true},
		{err: ErrClonedAuthenticator, verification: true},
		{err: ErrVerificationFailed, verification: true},
		{err: ErrStoreFailure, store: true},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			// Classification survives op wrapping and fmt wrapping.
			for _, err := range []error{tt.err, NewError("op", tt.err), fmt.Errorf("outer: %w", tt.err)} {
				assert.Equal(t, tt.input, IsInput(err))
				assert.Equal(t, tt.lookup, IsLookup(err))
				assert.Equal(t, tt.verification, IsVerification(err))
				assert.Equal(t, tt.store, IsStore(err))
				assert.Equal(t, tt.duplicate, IsDuplicateCredential(err))
			}
		})
	}
}

func TestStoreErr(t *testing.T) {
	assert.NoError(t, storeErr(nil))

	// Package sentinels pass through untouched.
	assert.ErrorIs(t, storeErr(ErrDuplicateCredential), ErrDuplicateCredential)
	assert.False(t, IsStore(storeErr(ErrCredentialNotFound)))

	// Anything else becomes a store failure.
	err := storeErr(errors.New("disk full"))
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.Contains(t, err.Error(), "disk full")
}

func TestClassifyVerificationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "challenge",
			err:  errors.New("Error validating challenge"),
			want: ErrChallengeMismatch,
		},
		{
			name: "origin",
			err:  errors.New("Error validating origin"),
			want: ErrOriginMismatch,
		},
		{
			name: "relying party",
			err:  errors.New("RP ID Hash mismatch"),
			want: ErrRelyingPartyMismatch,
		},
		{
			name: "signature",
			err:  errors.New("Error validating the assertion signature"),
			want: ErrSignatureInvalid,
		},
		{
			name: "parse",
			err:  errors.New("unable to parse credential response"),
			want: ErrMalformedResponse,
		},
		{
			name: "unknown",
			err:  errors.New("something else entirely"),
			want: ErrVerificationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyVerificationError("verify", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.True(t, IsVerification(got))
		})
	}
}
