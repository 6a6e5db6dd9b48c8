package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/forgelabs/promptforge/internal/errors"
)

// healthCheckTimeout bounds each registered check.
const healthCheckTimeout = 5 * time.Second

// HealthChecker reports the health of one subsystem.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body of a passing health probe.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered health checks and serves the probe
// endpoints.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds a named health check.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// runChecks evaluates every registered checker. Each check gets its own
// timeout; a deadline hit reads as "timeout", any other error as
// "unhealthy".
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]string, len(m.checkers))
	for name, checker := range m.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := checker.CheckHealth(checkCtx)
		cancel()

		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check states into one status. Any
// unhealthy check makes the service unhealthy; timeouts degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, state := range checks {
		switch state {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves the full health probe. An unhealthy service answers
// 503 with per-check states in the error details.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		envelope := gferrors.NewErrorEnvelope(apperrors.CodeServiceUnavailable, "service is unhealthy")
		withChecks, err := envelope.WithContext(map[string]interface{}{"checks": checks})
		if err == nil {
			envelope = withChecks
		}
		apperrors.WriteEnvelope(w, envelope, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness without running checks.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: m.version})
}

// ReadinessHandler reports whether the service can take traffic. It runs
// the full check set.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports whether startup completed. It runs the full
// check set.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

var globalHealthManager *HealthManager

// InitHealthManager creates the process-wide health manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide health manager, or nil before
// InitHealthManager.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func requireHealthManager(w http.ResponseWriter) *HealthManager {
	if globalHealthManager == nil {
		envelope := gferrors.NewErrorEnvelope(apperrors.CodeServiceUnavailable, "health manager not initialized")
		apperrors.WriteEnvelope(w, envelope, http.StatusServiceUnavailable)
		return nil
	}
	return globalHealthManager
}

// HealthHandler serves /health on the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if m := requireHealthManager(w); m != nil {
		m.HealthHandler(w, r)
	}
}

// LivenessHandler serves /health/live on the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if m := requireHealthManager(w); m != nil {
		m.LivenessHandler(w, r)
	}
}

// ReadinessHandler serves /health/ready on the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if m := requireHealthManager(w); m != nil {
		m.ReadinessHandler(w, r)
	}
}

// StartupHandler serves /health/startup on the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if m := requireHealthManager(w); m != nil {
		m.StartupHandler(w, r)
	}
}
