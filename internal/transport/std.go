package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
)

// StdClient runs requests on net/http with a cloned default transport and a
// capped connection pool.
type StdClient struct {
	client *http.Client
}

func NewStdClient(opts Options) *StdClient {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = opts.MaxConns
	t.MaxConnsPerHost = opts.MaxConns
	t.MaxIdleConnsPerHost = opts.MaxConns
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: !opts.VerifySSL}

	// Per-request timeouts come from the request context, not the client.
	return &StdClient{client: &http.Client{Transport: t}}
}

func (c *StdClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.Target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Err: err}
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	hresp, err := c.client.Do(hreq)
	if err != nil {
		return nil, normalize(err)
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, normalize(err)
	}

	return &Response{
		StatusCode: hresp.StatusCode,
		Body:       body,
		RetryAfter: hresp.Header.Get("Retry-After"),
	}, nil
}

// normalize maps engine errors onto the timeout/connection split. Context
// cancellation counts as a timeout so a request abandoned at shutdown is not
// misread as a broken endpoint.
func normalize(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Timeout: true, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Timeout: true, Err: err}
	}
	return &Error{Err: err}
}
