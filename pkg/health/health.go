// Package health provides health check endpoints for the scheduled double checker.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	LastRun    *RunReport             `json:"last_run,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// RunReport describes the most recent reconciliation run
type RunReport struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	FinishedAt time.Time `json:"finished_at"`
}

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker provides health check functionality
type Checker struct {
	pingers   map[string]Pinger
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
	lastRun   *RunReport
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		pingers:   map[string]Pinger{},
		startTime: time.Now(),
		version:   version,
	}
}

// AddCheck registers a dependency checked by the readiness and health endpoints
func (c *Checker) AddCheck(name string, pinger Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingers[name] = pinger
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// RecordRun stores the outcome of the latest run. A failed run degrades health until the next success.
func (c *Checker) RecordRun(success bool, message string, finishedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = &RunReport{Success: success, Message: message, FinishedAt: finishedAt}
}

// LivenessHandler returns the liveness probe handler
// Liveness: Is the process running and not deadlocked?
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler returns the readiness probe handler
// Readiness: Are the dependencies reachable?
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler returns a detailed health check handler
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.runChecks(ctx.Request().Context())

	c.mu.RLock()
	lastRun := c.lastRun
	c.mu.RUnlock()
	if lastRun != nil && !lastRun.Success {
		checks["last_run"] = CheckResult{Status: StatusDegraded, Message: lastRun.Message}
	}

	overallStatus := calculateOverallStatus(checks)
	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overallStatus,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		LastRun:    lastRun,
		ReportedAt: time.Now(),
	})
}

// runChecks pings every registered dependency
func (c *Checker) runChecks(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.pingers))
	for name := range c.pingers {
		names = append(names, name)
	}
	pingers := c.pingers
	c.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]CheckResult, len(names))
	for _, name := range names {
		checks[name] = check(ctx, pingers[name])
	}
	return checks
}

func check(ctx context.Context, pinger Pinger) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

// calculateOverallStatus determines the overall health status
func calculateOverallStatus(checks map[string]CheckResult) Status {
	hasUnhealthy := false
	hasDegraded := false

	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// RegisterRoutes registers health check routes under /api/v1
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")

	health.GET("", c.HealthHandler)

	// Kubernetes-style probes
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
