// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

// Package health implements liveness, readiness and startup probes for the
// portal server. Readiness aggregates named dependency checks so that a
// broken credential store takes the instance out of rotation without
// restarting it.
package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health state reported by a probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of a single named check.
type CheckResult struct {
	Name    string `json:"name,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc performs a dependency check.
type CheckFunc func(ctx context.Context) CheckResult

// Checker runs registered checks and tracks startup state.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	started bool
	start   time.Time
}

// NewChecker creates a Checker with no registered checks.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		start:  time.Now(),
	}
}

// Register adds a named readiness check. Registering the same name twice
// replaces the earlier check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// MarkStarted records that initialization has completed. The startup probe
// fails until this is called.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// Live reports whether the process is alive. It never inspects
// dependencies; a live but unready instance should not be restarted.
func (c *Checker) Live(ctx context.Context) CheckResult {
	return CheckResult{
		Status:  StatusHealthy,
		Message: "service is alive",
	}
}

// Ready runs every registered check and returns the individual results.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make([]CheckResult, 0, len(checks))
	for name, check := range checks {
		result := check(ctx)
		result.Name = name
		results = append(results, result)
	}
	return results
}

// Startup reports whether initialization has completed.
func (c *Checker) Startup(ctx context.Context) CheckResult {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()

	if !started {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "service is still starting",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "service has started",
	}
}

// Uptime returns how long the checker has existed.
func (c *Checker) Uptime() time.Duration {
	return time.Since(c.start)
}

// AggregateStatus reduces check results to a single status. Any unhealthy
// check makes the aggregate unhealthy; any degraded check makes it
// degraded; an empty result set is healthy.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
