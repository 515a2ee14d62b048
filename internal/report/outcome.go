package report

import "time"

// Outcome statuses. Client errors are terminal on first sight; server
// errors, timeouts and transport failures are the retryable classes.
const (
	StatusSuccess        = "success"
	StatusClientError    = "client_error"
	StatusServerError    = "server_error"
	StatusTimeout        = "timeout"
	StatusTransportError = "transport_error"
)

// Outcome is the record of one logical request: the final attempt's result
// plus totals accumulated across every attempt. Exactly one Outcome exists
// per dispatched request.
type Outcome struct {
	UserID         int     `json:"user_id"`
	Scenario       string  `json:"request_type"`
	Category       string  `json:"category"`
	ContextTokens  int     `json:"context_length"`
	Status         string  `json:"status"`
	HTTPStatus     int     `json:"http_status,omitempty"`
	ElapsedSeconds float64 `json:"response_time"`
	TokensSent     int     `json:"tokens_sent"`
	TokensReceived int     `json:"tokens_received"`
	// ResponseExcerpt keeps at most 1000 characters of the reply body.
	ResponseExcerpt string    `json:"response_content,omitempty"`
	Error           string    `json:"error,omitempty"`
	Retries         int       `json:"retry_count"`
	Timestamp       time.Time `json:"timestamp"`
}

func (o Outcome) Success() bool { return o.Status == StatusSuccess }

// HealthCheck is one probe observation. ElapsedSeconds counts from the start
// of the run, not the probe attempt.
type HealthCheck struct {
	Timestamp      time.Time `json:"timestamp"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Status         string    `json:"status"`
	Healthy        bool      `json:"healthy"`
	HTTPStatus     int       `json:"http_status,omitempty"`
	Response       string    `json:"response,omitempty"`
	Error          string    `json:"error,omitempty"`
	ActiveRequests int       `json:"active_requests"`
}

// Health statuses: "healthy", "unhealthy" (HTTP-level failure), "error"
// (transport-level failure).
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthError     = "error"
)

// ResponseSample is a short excerpt of an early successful reply, kept so a
// reader can verify the endpoint returned real completions.
type ResponseSample struct {
	UserID    int       `json:"user_id"`
	Scenario  string    `json:"request_type"`
	Timestamp time.Time `json:"timestamp"`
	Response  string    `json:"response"`
}
