// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package rest implements the portal HTTP server.
//
// It mounts the passkey ceremony endpoints under /api/v1/passkey,
// credential administration under /api/v1/users, Kubernetes-style health
// probes under /health, and optionally Prometheus metrics at /metrics.
package rest
