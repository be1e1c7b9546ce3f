// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package passkey implements the portal's public-key (WebAuthn) login
// subsystem: challenge issuance, registration and authentication ceremonies,
// and per-credential lifecycle management.
//
// This package wraps the go-webauthn/webauthn library and provides:
//   - Pluggable storage interfaces for identities, credentials, and challenges
//   - In-memory storage implementations for development/testing
//   - Composable HTTP handlers that can be mounted on any router (pkg/passkey/http)
//   - Optional token issuance after successful authentication
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - challenge issuance and ceremony verification
//  2. Storage layer (IdentityStore, CredentialStore, ChallengeStore) - pluggable persistence
//  3. HTTP layer (pkg/passkey/http) - the portal's JSON endpoints
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "CourseHub",
//	        RPOrigins:     []string{"https://localhost"},
//	    },
//	    Identities:  passkey.NewMemoryIdentityStore(),
//	    Challenges:  passkey.NewMemoryChallengeStore(),
//	    Credentials: passkey.NewMemoryCredentialStore(),
//	})
//
// For production, back CredentialStore with a database (see
// internal/storage/sqlite) and IdentityStore with the portal's user table.
//
// # Security model
//
// Attestation is requested as "none": credential trust rests on the correct
// challenge having been signed, not on hardware provenance. Replay of signed
// assertions is detected through the authenticator signature counter, which
// must strictly increase between logins. Authenticators that never increment
// (counter fixed at zero) are accepted as a deliberate policy relaxation;
// revisit that choice before reusing this package in a higher-assurance
// context.
package passkey
