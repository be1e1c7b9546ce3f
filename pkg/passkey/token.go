// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package passkey

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIssuer mints ES256-signed tokens after successful authentication, for
// the portal's session layer to consume. It is optional; a Service without
// one returns only the user id from CompleteAuthentication.
type JWTIssuer struct {
	privateKey *ecdsa.PrivateKey
	issuer     string
	audience   []string
	expiresIn  time.Duration
}

// JWTIssuerConfig contains configuration for the JWT issuer.
type JWTIssuerConfig struct {
	// PrivateKey signs tokens (required, P-256).
	PrivateKey *ecdsa.PrivateKey

	// Issuer is the JWT issuer claim (default: "coursehub-portal").
	Issuer string

	// Audience is the JWT audience claim (default: ["coursehub-portal"]).
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour).
	ExpiresIn time.Duration
}

// NewJWTIssuer creates a new JWT issuer with the given configuration.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "coursehub-portal"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"coursehub-portal"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &JWTIssuer{
		privateKey: config.PrivateKey,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
	}, nil
}

// Issue creates a signed JWT for the authenticated user.
func (g *JWTIssuer) Issue(ctx context.Context, user User) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"aud": g.audience,
		"sub": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		"nbf": now.Unix(),
		"amr": []string{"webauthn"},
	}
	if user.Email != "" {
		claims["email"] = user.Email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token previously minted by Issue, returning
// the subject user id. Intended for tests and the portal's session layer.
func (g *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &g.privateKey.PublicKey, nil
	}, jwt.WithIssuer(g.issuer))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("token subject: %w", err)
	}
	return sub, nil
}
