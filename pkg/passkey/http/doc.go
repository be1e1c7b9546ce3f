// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package http provides composable HTTP handlers for the portal's passkey
// ceremonies.
//
// The handlers wrap a passkey.Service and can be mounted on any router the
// portal uses.
//
// # Usage
//
//	svc, _ := passkey.NewService(...)
//	handler := passkeyhttp.NewHandler(svc)
//
//	// For chi router:
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
//
//	// For stdlib http.ServeMux:
//	passkeyhttp.MountStdlib(mux, "/api/v1/passkey", handler)
//
// # Endpoints
//
// All four endpoints are JSON in, JSON out, POST only:
//
//	POST /registration/challenge    - Issue a registration challenge
//	POST /registration/complete     - Complete registration
//	POST /authentication/challenge  - Issue an authentication challenge
//	POST /authentication/complete   - Complete authentication
//
// Completion requests carry the challenge the client was issued in the
// expectedChallenge field; it must match the most recently issued challenge
// for that user and ceremony.
//
// # Response Format
//
// Successful completion responses have the shape:
//
//	{
//	    "success": true,
//	    "userId": "...",  // completion of authentication only
//	    "token": "..."    // authentication, when a token issuer is configured
//	}
//
// Error responses have the format:
//
//	{
//	    "error": "error_code",
//	    "message": "Human-readable message"
//	}
//
// Verification failures deliberately carry a generic message. The specific
// failing check (challenge, origin, relying party, signature, counter) is
// written to the server log only.
package http
