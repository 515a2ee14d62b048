// Package transport abstracts the HTTP stack behind a single-call Client so
// the request path can run on net/http or fasthttp interchangeably.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Request is one HTTP call. Method defaults to POST, the only verb the
// generator uses.
type Request struct {
	Target  string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is the engine-neutral result. RetryAfter carries the raw
// Retry-After header when the server sent one; the retry loop uses it as a
// floor on the next backoff delay.
type Response struct {
	StatusCode int
	Body       []byte
	RetryAfter string
}

// Error normalizes engine failures into the two classes the outcome model
// cares about. Timeout covers deadline-style failures, including requests
// cut off by shutdown; everything else is a connection-level failure.
type Error struct {
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timeout: %v", e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client sends one request and returns the normalized response. Engines must
// be safe for concurrent use by many sessions.
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Options size the connection pool shared by all sessions.
type Options struct {
	MaxConns  int
	VerifySSL bool
}

// New builds the configured engine. engine must be validated upstream.
func New(engine string, opts Options) (Client, error) {
	switch engine {
	case "std":
		return NewStdClient(opts), nil
	case "fasthttp":
		return NewFastClient(opts), nil
	}
	return nil, fmt.Errorf("unknown http engine %q", engine)
}
