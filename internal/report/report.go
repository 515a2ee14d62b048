package report

import (
	"time"

	"inferload/internal/config"
)

// Report is the immutable result document. Top-level JSON fields are stable:
// config, summary, health_checks, response_samples, results.
type Report struct {
	Config          config.TestConfig `json:"config"`
	Summary         Summary           `json:"summary"`
	HealthChecks    []HealthCheck     `json:"health_checks"`
	ResponseSamples []ResponseSample  `json:"response_samples"`
	Results         []Outcome         `json:"results"`
}

// Summary aggregates the run. Failed counts client, server and transport
// errors; timeouts are tracked separately, matching the status split.
type Summary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	TestDuration float64   `json:"test_duration"`

	TotalRequests int `json:"total_requests"`
	Successful    int `json:"successful"`
	Failed        int `json:"failed"`
	Timeouts      int `json:"timeouts"`
	Retried       int `json:"retried"`

	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
	TimeoutRate float64 `json:"timeout_rate"`

	StatusCounts map[string]int `json:"status_counts"`

	// Latency is computed over successful requests only and omitted when
	// none succeeded.
	Latency *LatencyStats `json:"latency,omitempty"`

	Tokens         TokenStats      `json:"tokens"`
	Throughput     Throughput      `json:"throughput"`
	Scenarios      []ScenarioStats `json:"scenarios"`
	ContextBuckets []BucketStats   `json:"context_buckets"`
	Errors         []ErrorCount    `json:"errors,omitempty"`
	EndpointHealth HealthSummary   `json:"endpoint_health"`
}

// LatencyStats are in seconds.
type LatencyStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// TokenStats cover successful requests: failures exchange no usable tokens.
type TokenStats struct {
	TotalSent     int64   `json:"total_sent"`
	TotalReceived int64   `json:"total_received"`
	AvgSent       float64 `json:"avg_sent"`
	AvgReceived   float64 `json:"avg_received"`
}

type Throughput struct {
	RequestsPerSecond   float64 `json:"requests_per_second"`
	SuccessfulPerSecond float64 `json:"successful_per_second"`
}

// ScenarioStats is the per-template breakdown, ordered by name.
type ScenarioStats struct {
	Scenario        string  `json:"request_type"`
	Requests        int     `json:"requests"`
	Successful      int     `json:"successful"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// BucketStats is one fixed context-size bucket.
type BucketStats struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// ErrorCount tallies one distinct error message, ordered by count
// descending.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

type HealthSummary struct {
	TotalChecks     int     `json:"total_checks"`
	HealthyChecks   int     `json:"healthy_checks"`
	UnhealthyChecks int     `json:"unhealthy_checks"`
	HealthyRatio    float64 `json:"healthy_ratio"`
	FinalStatus     string  `json:"final_status"`
}
