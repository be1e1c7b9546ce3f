// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package correlation propagates request correlation IDs through contexts so
// that log lines from a single passkey ceremony can be tied together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	idKey contextKey = "correlation-id"

	// RequestIDHeader is the HTTP header for request IDs
	RequestIDHeader = "X-Request-ID"

	// CorrelationIDHeader is the HTTP header for correlation IDs
	CorrelationIDHeader = "X-Correlation-ID"
)

// WithID adds a correlation ID to the context.
func WithID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, idKey, id)
}

// FromContext retrieves the correlation ID from context.
// Returns an empty string if no correlation ID is present.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(idKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 correlation ID.
func NewID() string {
	return uuid.New().String()
}

type headerGetter interface {
	Get(string) string
}

// FromHeaders resolves the correlation ID for an incoming request,
// preferring X-Correlation-ID over X-Request-ID and generating a fresh
// ID when neither is set.
func FromHeaders(h headerGetter) string {
	if id := h.Get(CorrelationIDHeader); id != "" {
		return id
	}
	if id := h.Get(RequestIDHeader); id != "" {
		return id
	}
	return NewID()
}
