// Package health runs named checks against the resources a kernel depends
// on and folds them into one status.
package health

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Status is the result of a check or of a checker as a whole.
type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// CheckFunc is a function that performs a health check
type CheckFunc func(ctx context.Context) error

// Check represents a single health check result
type Check struct {
	Name        string
	Status      Status
	Message     string
	Duration    time.Duration
	LastChecked time.Time
}

// Checker keeps the latest result of each named check.
type Checker struct {
	mu          sync.RWMutex
	checks      map[string]*Check
	lastHealthy time.Time
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{
		checks:      make(map[string]*Check),
		lastHealthy: time.Now(),
	}
}

// RunCheck executes a health check and records its result.
func (c *Checker) RunCheck(ctx context.Context, name string, checkFunc CheckFunc) {
	status := Healthy
	message := "OK"

	start := time.Now()
	if err := checkFunc(ctx); err != nil {
		status = Unhealthy
		message = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = &Check{
		Name:        name,
		Status:      status,
		Message:     message,
		Duration:    time.Since(start),
		LastChecked: time.Now(),
	}

	if c.isHealthy() {
		c.lastHealthy = time.Now()
	}
}

// Overall returns healthy when every check passed, unhealthy when all
// failed and degraded otherwise. A checker without checks is healthy.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unhealthy := 0
	for _, check := range c.checks {
		if check.Status == Unhealthy {
			unhealthy++
		}
	}

	switch {
	case unhealthy == 0:
		return Healthy
	case unhealthy < len(c.checks):
		return Degraded
	}
	return Unhealthy
}

// Checks returns copies of the check results ordered by name.
func (c *Checker) Checks() []Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, *check)
	}
	slices.SortFunc(checks, func(a, b Check) int { return strings.Compare(a.Name, b.Name) })
	return checks
}

// LastHealthy returns the last time all checks were healthy
func (c *Checker) LastHealthy() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHealthy
}

func (c *Checker) isHealthy() bool {
	for _, check := range c.checks {
		if check.Status != Healthy {
			return false
		}
	}
	return true
}
