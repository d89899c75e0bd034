package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string                       `json:"status"`
	Checks      map[string]SystemHealthCheck `json:"checks"`
	Version     string                       `json:"version,omitempty"`
	CommitSHA   string                       `json:"commitSha,omitempty"`
	Environment string                       `json:"environment,omitempty"`
	Uptime      time.Duration                `json:"uptime,omitempty"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}
