// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdentityStore(t *testing.T) {
	store := NewMemoryIdentityStore()
	ctx := context.Background()

	added := store.Add(User{Email: "S1234567@CourseHub.Example.Edu"})
	require.NotEmpty(t, added.ID)

	// Lookup is case-insensitive on the handle.
	user, err := store.LookupByEmail(ctx, "s1234567@coursehub.example.edu")
	require.NoError(t, err)
	assert.Equal(t, added.ID, user.ID)

	_, err = store.LookupByEmail(ctx, "other@coursehub.example.edu")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryChallengeStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	record := &ChallengeRecord{
		ID:        "ch-1",
		UserID:    "user-1",
		Purpose:   PurposeRegistration,
		Challenge: "Y2hhbGxlbmdl",
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, store.Put(ctx, record))
	assert.Equal(t, 1, store.Count())

	got, err := store.Consume(ctx, "user-1", PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	// Single use: a second consume finds nothing.
	_, err = store.Consume(ctx, "user-1", PurposeRegistration)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestMemoryChallengeStore_PurposeIsolation(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &ChallengeRecord{
		ID: "reg", UserID: "user-1", Purpose: PurposeRegistration,
		ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, store.Put(ctx, &ChallengeRecord{
		ID: "auth", UserID: "user-1", Purpose: PurposeAuthentication,
		ExpiresAt: now.Add(time.Minute),
	}))

	got, err := store.Consume(ctx, "user-1", PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, "auth", got.ID)

	// The registration challenge is still outstanding.
	got, err = store.Consume(ctx, "user-1", PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "reg", got.ID)
}

func TestMemoryChallengeStore_ReplacesPrior(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"first", "second"} {
		require.NoError(t, store.Put(ctx, &ChallengeRecord{
			ID: id, UserID: "user-1", Purpose: PurposeAuthentication,
			ExpiresAt: now.Add(time.Minute),
		}))
	}
	assert.Equal(t, 1, store.Count())

	got, err := store.Consume(ctx, "user-1", PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, "second", got.ID)
}

func TestMemoryChallengeStore_Expiry(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &ChallengeRecord{
		ID: "stale", UserID: "user-1", Purpose: PurposeAuthentication,
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}))

	_, err := store.Consume(ctx, "user-1", PurposeAuthentication)
	assert.ErrorIs(t, err, ErrChallengeExpired)

	// The expired record was removed, not left behind.
	_, err = store.Consume(ctx, "user-1", PurposeAuthentication)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestMemoryChallengeStore_Cleanup(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, &ChallengeRecord{
		ID: "live", UserID: "user-1", Purpose: PurposeAuthentication,
		ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, store.Put(ctx, &ChallengeRecord{
		ID: "stale", UserID: "user-2", Purpose: PurposeAuthentication,
		ExpiresAt: now.Add(-time.Minute),
	}))

	assert.Equal(t, 1, store.Cleanup())
	assert.Equal(t, 1, store.Count())
}

func testCredential(id byte, userID string) *Credential {
	return &Credential{
		ID:        []byte{id, 0x02, 0x03},
		UserID:    userID,
		PublicKey: []byte{0xaa},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryCredentialStore_SaveAndGet(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	cred := testCredential(0x01, "user-1")
	require.NoError(t, store.Save(ctx, cred))

	got, err := store.GetByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, got.UserID)

	// Returned values are copies; mutating them does not touch the store.
	got.SignCount = 99
	again, err := store.GetByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), again.SignCount)

	_, err = store.GetByCredentialID(ctx, []byte{0xde, 0xad})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	byUser, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	empty, err := store.GetByUserID(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryCredentialStore_DuplicateID(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential(0x01, "user-1")))

	// Credential ids are unique globally, not per user.
	err := store.Save(ctx, testCredential(0x01, "user-2"))
	assert.ErrorIs(t, err, ErrDuplicateCredential)
	assert.Equal(t, 1, store.Count())
}

func TestMemoryCredentialStore_UpdateCounter(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	cred := testCredential(0x01, "user-1")
	require.NoError(t, store.Save(ctx, cred))

	require.NoError(t, store.UpdateCounter(ctx, cred.ID, 5))

	got, err := store.GetByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.SignCount)
	assert.False(t, got.LastUsedAt.IsZero())

	// Equal and lower values are rejected and leave the counter alone.
	assert.ErrorIs(t, store.UpdateCounter(ctx, cred.ID, 5), ErrClonedAuthenticator)
	assert.ErrorIs(t, store.UpdateCounter(ctx, cred.ID, 3), ErrClonedAuthenticator)

	got, err = store.GetByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.SignCount)

	assert.ErrorIs(t, store.UpdateCounter(ctx, []byte{0xde}, 9), ErrCredentialNotFound)
}

// Two racing counter updates with the same target value: exactly one wins.
func TestMemoryCredentialStore_UpdateCounterRace(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	cred := testCredential(0x01, "user-1")
	require.NoError(t, store.Save(ctx, cred))

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.UpdateCounter(ctx, cred.ID, 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrClonedAuthenticator)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := store.GetByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.SignCount)
}

func TestMemoryCredentialStore_Delete(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	cred := testCredential(0x01, "user-1")
	require.NoError(t, store.Save(ctx, cred))
	require.NoError(t, store.Delete(ctx, cred.ID))

	_, err := store.GetByCredentialID(ctx, cred.ID)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	byUser, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, byUser)

	assert.ErrorIs(t, store.Delete(ctx, cred.ID), ErrCredentialNotFound)
}

func TestMemoryCredentialStore_DeleteByUserID(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, store.Save(ctx, testCredential(i, "user-1")))
	}
	require.NoError(t, store.Save(ctx, testCredential(4, "user-2")))

	require.NoError(t, store.DeleteByUserID(ctx, "user-1"))
	assert.Equal(t, 1, store.Count())

	// Zero rows is not an error.
	require.NoError(t, store.DeleteByUserID(ctx, "user-1"))
	require.NoError(t, store.DeleteByUserID(ctx, "never-existed"))
}

func TestMemoryCredentialStore_ConcurrentSaves(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred := testCredential(byte(i), fmt.Sprintf("user-%d", i%4))
			assert.NoError(t, store.Save(ctx, cred))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, store.Count())
}
