package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
)

// FastClient runs requests on fasthttp. fasthttp calls are not
// context-aware, so Send races DoTimeout against the context and abandons
// the pooled request/response objects to the worker goroutine when the
// context wins.
type FastClient struct {
	client *fasthttp.Client
}

func NewFastClient(opts Options) *FastClient {
	return &FastClient{client: &fasthttp.Client{
		MaxConnsPerHost: opts.MaxConns,
		TLSConfig:       &tls.Config{InsecureSkipVerify: !opts.VerifySSL},
	}}
}

func (c *FastClient) Send(ctx context.Context, req *Request) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		freq := fasthttp.AcquireRequest()
		fresp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(freq)
		defer fasthttp.ReleaseResponse(fresp)

		freq.SetRequestURI(req.Target)
		method := req.Method
		if method == "" {
			method = fasthttp.MethodPost
		}
		freq.Header.SetMethod(method)
		for k, v := range req.Headers {
			freq.Header.Set(k, v)
		}
		freq.SetBody(req.Body)

		timeout := req.Timeout
		if timeout <= 0 {
			timeout = time.Hour
		}
		if err := c.client.DoTimeout(freq, fresp, timeout); err != nil {
			done <- result{err: normalizeFast(err)}
			return
		}

		// Copy out of the pooled response before releasing it.
		body := make([]byte, len(fresp.Body()))
		copy(body, fresp.Body())
		done <- result{resp: &Response{
			StatusCode: fresp.StatusCode(),
			Body:       body,
			RetryAfter: string(fresp.Header.Peek("Retry-After")),
		}}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, &Error{Timeout: true, Err: ctx.Err()}
	}
}

func normalizeFast(err error) *Error {
	if errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrTLSHandshakeTimeout) {
		return &Error{Timeout: true, Err: err}
	}
	return normalize(err)
}
