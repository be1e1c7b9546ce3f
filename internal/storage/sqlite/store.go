// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package sqlite provides a SQLite-backed credential store for the portal's
// passkey service, using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	_ "modernc.org/sqlite"

	"github.com/coursehub/portal/pkg/passkey"
)

const schema = `
CREATE TABLE IF NOT EXISTS passkey_credentials (
	credential_id    TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	public_key       TEXT NOT NULL,
	attestation_type TEXT NOT NULL DEFAULT '',
	transports       TEXT,
	aaguid           TEXT NOT NULL DEFAULT '',
	flags            INTEGER NOT NULL DEFAULT 0,
	counter          INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	last_used_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_passkey_credentials_user_id
	ON passkey_credentials (user_id);
`

// Credential flag bits packed into the flags column.
const (
	flagUserPresent = 1 << iota
	flagUserVerified
	flagBackupEligible
	flagBackupState
)

// CredentialStore is a passkey.CredentialStore backed by SQLite. The
// counter update runs as a conditional UPDATE so concurrent authentications
// of the same credential serialize on the database, not on this process.
type CredentialStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the credential database at path and
// applies the schema. The path ":memory:" yields a throwaway database.
func Open(path string) (*CredentialStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent ceremony completions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &CredentialStore{db: db}, nil
}

// NewCredentialStore wraps an existing database handle. The schema must
// already be applied.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Close closes the underlying database.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness probes.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts a new credential. Global credential-id uniqueness rides on
// the primary key, which closes the race between two concurrent
// registrations of the same device.
func (s *CredentialStore) Save(ctx context.Context, cred *passkey.Credential) error {
	transports, err := encodeTransports(cred.Transports)
	if err != nil {
		return fmt.Errorf("encode transports: %w", err)
	}

	lastUsed := sql.NullInt64{}
	if !cred.LastUsedAt.IsZero() {
		lastUsed = sql.NullInt64{Int64: cred.LastUsedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO passkey_credentials
			(credential_id, user_id, public_key, attestation_type, transports,
			 aaguid, flags, counter, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		encodeID(cred.ID),
		cred.UserID,
		base64.StdEncoding.EncodeToString(cred.PublicKey),
		cred.AttestationType,
		transports,
		base64.StdEncoding.EncodeToString(cred.AAGUID),
		packFlags(cred.Flags),
		cred.SignCount,
		cred.CreatedAt.UnixMilli(),
		lastUsed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByUserID retrieves all credentials for a user.
func (s *CredentialStore) GetByUserID(ctx context.Context, userID string) ([]*passkey.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, user_id, public_key, attestation_type, transports,
		       aaguid, flags, counter, created_at, last_used_at
		FROM passkey_credentials
		WHERE user_id = ?
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("select credentials: %w", err)
	}
	defer rows.Close()

	var creds []*passkey.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

// GetByCredentialID retrieves a credential by its id.
func (s *CredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*passkey.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, user_id, public_key, attestation_type, transports,
		       aaguid, flags, counter, created_at, last_used_at
		FROM passkey_credentials
		WHERE credential_id = ?`, encodeID(credID))

	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}

// UpdateCounter advances the signature counter, only if the stored value is
// still strictly lower. The condition lives in the UPDATE itself so the
// compare and the set are one atomic statement.
func (s *CredentialStore) UpdateCounter(ctx context.Context, credID []byte, newCount uint32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET counter = ?, last_used_at = ?
		WHERE credential_id = ? AND counter < ?`,
		newCount, time.Now().UnixMilli(), encodeID(credID), newCount)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows: the credential is missing, or its counter already
	// caught up (a concurrent login won the race, or a replay).
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM passkey_credentials WHERE credential_id = ?`,
		encodeID(credID)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return passkey.ErrCredentialNotFound
	}
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	return passkey.ErrClonedAuthenticator
}

// Delete removes a credential by its id.
func (s *CredentialStore) Delete(ctx context.Context, credID []byte) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM passkey_credentials WHERE credential_id = ?`, encodeID(credID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return passkey.ErrCredentialNotFound
	}
	return nil
}

// DeleteByUserID removes all credentials for a user. Zero rows is not an
// error.
func (s *CredentialStore) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM passkey_credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*passkey.Credential, error) {
	var (
		credID     string
		publicKey  string
		transports sql.NullString
		aaguid     string
		flags      int
		createdAt  int64
		lastUsedAt sql.NullInt64
		cred       passkey.Credential
	)

	err := row.Scan(&credID, &cred.UserID, &publicKey, &cred.AttestationType,
		&transports, &aaguid, &flags, &cred.SignCount, &createdAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}

	if cred.ID, err = base64.RawURLEncoding.DecodeString(credID); err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	if cred.PublicKey, err = base64.StdEncoding.DecodeString(publicKey); err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if cred.AAGUID, err = base64.StdEncoding.DecodeString(aaguid); err != nil {
		return nil, fmt.Errorf("decode aaguid: %w", err)
	}
	if cred.Transports, err = decodeTransports(transports); err != nil {
		return nil, fmt.Errorf("decode transports: %w", err)
	}

	cred.Flags = unpackFlags(flags)
	cred.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastUsedAt.Valid {
		cred.LastUsedAt = time.UnixMilli(lastUsedAt.Int64).UTC()
	}
	return &cred, nil
}

func encodeID(credID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credID)
}

func encodeTransports(transports []protocol.AuthenticatorTransport) (sql.NullString, error) {
	if len(transports) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(transports)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeTransports(value sql.NullString) ([]protocol.AuthenticatorTransport, error) {
	if !value.Valid {
		return nil, nil
	}
	var transports []protocol.AuthenticatorTransport
	if err := json.Unmarshal([]byte(value.String), &transports); err != nil {
		return nil, err
	}
	return transports, nil
}

func packFlags(f passkey.CredentialFlags) int {
	var bits int
	if f.UserPresent {
		bits |= flagUserPresent
	}
	if f.UserVerified {
		bits |= flagUserVerified
	}
	if f.BackupEligible {
		bits |= flagBackupEligible
	}
	if f.BackupState {
		bits |= flagBackupState
	}
	return bits
}

func unpackFlags(bits int) passkey.CredentialFlags {
	return passkey.CredentialFlags{
		UserPresent:    bits&flagUserPresent != 0,
		UserVerified:   bits&flagUserVerified != 0,
		BackupEligible: bits&flagBackupEligible != 0,
		BackupState:    bits&flagBackupState != 0,
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
