package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-watch/shared/config"
)

func kindOf(err error) ErrorKind {
	var pe *Error
	if !errors.As(err, &pe) {
		return ""
	}
	return pe.Kind
}

func testClient(t *testing.T, retries int) (*httpClient, *[]time.Duration) {
	t.Helper()
	c := newHTTPClient("test", config.ProviderConfig{MaxRetries: retries, Timeout: 2 * time.Second}, nil)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestHTTPClientHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, slept := testClient(t, 2)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.getJSON(context.Background(), srv.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, []time.Duration{3 * time.Second}, *slept)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, slept := testClient(t, 2)
	err := c.getJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, kindOf(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, 3)
	err := c.getJSON(context.Background(), srv.URL, nil, nil)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": [`))
	}))
	defer srv.Close()

	c, _ := testClient(t, 2)
	var out map[string]interface{}
	err := c.getJSON(context.Background(), srv.URL, nil, &out)
	assert.Equal(t, KindMalformed, kindOf(err))
}

func TestHTTPClientContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := testClient(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.getJSON(ctx, srv.URL, nil, nil)
	assert.Equal(t, KindTimeout, kindOf(err))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("p", nil))
	assert.Equal(t, KindTimeout, Classify("p", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindRateLimited, Classify("p", errString("HTTP 429 Too Many Requests")).Kind)
	assert.Equal(t, KindUnavailable, Classify("p", errString("connection refused")).Kind)

	wrapped := newError("alchemy", KindMalformed, 0, errString("x"))
	assert.Same(t, wrapped, Classify("other", wrapped))
}

type errString string

func (e errString) Error() string { return string(e) }
