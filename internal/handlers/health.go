package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/oghouse/api/internal/domain"
)

// HealthReporter aggregates dependency probes into a readiness report.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// BuildInfo captures version metadata surfaced on the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	reporter HealthReporter
	build    BuildInfo
	now      func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthReporter wires the readiness probe aggregator.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) {
		h.reporter = reporter
	}
}

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a custom clock primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoint handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build: BuildInfo{StartedAt: time.Now()},
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz evaluates dependency probes and reports readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.reporter.Collect(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"details": []string{err.Error()},
		})
		return
	}

	details := make([]string, 0)
	for name, check := range report.Checks {
		if check.Status == domain.HealthStatusOK {
			continue
		}
		detail := check.Error
		if detail == "" {
			detail = check.Detail
		}
		details = append(details, fmt.Sprintf("%s: %s", name, detail))
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, map[string]any{
		"status":      report.Status,
		"checks":      report.Checks,
		"details":     details,
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
