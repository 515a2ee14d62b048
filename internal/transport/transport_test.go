package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engines(t *testing.T) map[string]Client {
	t.Helper()
	opts := Options{MaxConns: 10}
	return map[string]Client{
		"std":      NewStdClient(opts),
		"fasthttp": NewFastClient(opts),
	}
}

func TestSendRoundTrip(t *testing.T) {
	type captured struct {
		method, contentType, body string
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen <- captured{r.Method, r.Header.Get("Content-Type"), string(b)}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	for name, client := range engines(t) {
		t.Run(name, func(t *testing.T) {
			resp, err := client.Send(context.Background(), &Request{
				Target:  srv.URL,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    []byte(`{"q":1}`),
				Timeout: 5 * time.Second,
			})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, `{"ok":true}`, string(resp.Body))
			assert.Empty(t, resp.RetryAfter)

			got := <-seen
			assert.Equal(t, http.MethodPost, got.method)
			assert.Equal(t, "application/json", got.contentType)
			assert.Equal(t, `{"q":1}`, got.body)
		})
	}
}

func TestSendCapturesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	for name, client := range engines(t) {
		t.Run(name, func(t *testing.T) {
			resp, err := client.Send(context.Background(), &Request{Target: srv.URL, Timeout: 5 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			assert.Equal(t, "7", resp.RetryAfter)
		})
	}
}

func TestSendTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	for name, client := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Send(context.Background(), &Request{Target: srv.URL, Timeout: 50 * time.Millisecond})
			var terr *Error
			require.ErrorAs(t, err, &terr)
			assert.True(t, terr.Timeout)
		})
	}
}

func TestSendConnectionFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	for name, client := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Send(context.Background(), &Request{Target: url, Timeout: time.Second})
			var terr *Error
			require.ErrorAs(t, err, &terr)
			assert.False(t, terr.Timeout)
		})
	}
}

func TestSendCanceledContextCountsAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	for name, client := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			_, err := client.Send(ctx, &Request{Target: srv.URL, Timeout: 5 * time.Second})
			var terr *Error
			require.ErrorAs(t, err, &terr)
			assert.True(t, terr.Timeout)
		})
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New("std", Options{MaxConns: 1})
	require.NoError(t, err)
	assert.IsType(t, &StdClient{}, c)

	c, err = New("fasthttp", Options{MaxConns: 1})
	require.NoError(t, err)
	assert.IsType(t, &FastClient{}, c)

	_, err = New("gopher", Options{})
	assert.Error(t, err)
}
