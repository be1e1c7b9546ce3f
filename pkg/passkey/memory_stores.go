// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIdentityStore is an in-memory implementation of IdentityStore.
// This is intended for development and testing only; the portal's identity
// system provides the production implementation.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

// NewMemoryIdentityStore creates a new in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byEmail: make(map[string]User),
	}
}

// Add registers a user, assigning an id when none is set, and returns it.
func (s *MemoryIdentityStore) Add(user User) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.byEmail[strings.ToLower(user.Email)] = user
	return user
}

// LookupByEmail resolves an email handle to a user.
func (s *MemoryIdentityStore) LookupByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// Expiry is passive: expired records are rejected (and removed) when
// consumed, which is sufficient because an expired challenge must never be
// accepted even when a client replays it verbatim.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	records map[string]*ChallengeRecord
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		records: make(map[string]*ChallengeRecord),
	}
}

func challengeKey(userID string, purpose Purpose) string {
	return userID + "/" + string(purpose)
}

// Put stores the record, replacing any outstanding challenge for the same
// user and purpose.
func (s *MemoryChallengeStore) Put(ctx context.Context, record *ChallengeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[challengeKey(record.UserID, record.Purpose)] = record
	return nil
}

// Consume removes and returns the record for (userID, purpose). The removal
// happens before the expiry check so that a failed attempt retires the
// challenge exactly like a successful one.
func (s *MemoryChallengeStore) Consume(ctx context.Context, userID string, purpose Purpose) (*ChallengeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(userID, purpose)
	record, ok := s.records[key]
	if !ok {
		return nil, ErrChallengeMismatch
	}
	delete(s.records, key)

	if record.Expired(time.Now().UTC()) {
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Count returns the number of outstanding challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Cleanup removes expired records and returns how many were dropped.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]*Credential
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]*Credential),
	}
}

// Save stores a new credential, enforcing global credential-id uniqueness.
func (s *MemoryCredentialStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; ok {
		return ErrDuplicateCredential
	}

	stored := *cred
	s.byID[credKey] = &stored
	s.byUserID[cred.UserID] = append(s.byUserID[cred.UserID], &stored)
	return nil
}

// GetByUserID retrieves all credentials for a user.
func (s *MemoryCredentialStore) GetByUserID(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := s.byUserID[userID]
	result := make([]*Credential, len(creds))
	for i, c := range creds {
		copied := *c
		result[i] = &copied
	}
	return result, nil
}

// GetByCredentialID retrieves a credential by its id.
func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

// UpdateCounter advances the counter under the store lock, only when the
// stored value is strictly lower than newCount.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, credID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if cred.SignCount >= newCount {
		return ErrClonedAuthenticator
	}
	cred.SignCount = newCount
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// Delete removes a credential by its id.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(credID)
	cred, ok := s.byID[credKey]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(s.byID, credKey)

	creds := s.byUserID[cred.UserID]
	for i, c := range creds {
		if hex.EncodeToString(c.ID) == credKey {
			s.byUserID[cred.UserID] = append(creds[:i], creds[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteByUserID removes all credentials for a user. Zero rows is not an
// error.
func (s *MemoryCredentialStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.byUserID[userID] {
		delete(s.byID, hex.EncodeToString(cred.ID))
	}
	delete(s.byUserID, userID)
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
