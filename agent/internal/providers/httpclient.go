package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/utils"
)

const (
	maxBackoff      = 8 * time.Second
	maxResponseSize = 8 << 20
)

// httpClient is the rate-limited, retrying JSON transport shared by the REST
// and JSON-RPC providers.
type httpClient struct {
	provider    string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	appLogger   *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func newHTTPClient(provider string, cfg config.ProviderConfig, appLogger *logger.Logger) *httpClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	return &httpClient{
		provider:    provider,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: time.Second,
		appLogger:   appLogger,
		sleep:       sleepCtx,
	}
}

func (h *httpClient) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	return h.do(ctx, http.MethodGet, url, nil, header, out)
}

func (h *httpClient) postJSON(ctx context.Context, url string, payload interface{}, header http.Header, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return newError(h.provider, KindMalformed, 0, fmt.Errorf("marshal request: %w", err))
	}
	return h.do(ctx, http.MethodPost, url, body, header, out)
}

func (h *httpClient) do(ctx context.Context, method, url string, body []byte, header http.Header, out interface{}) error {
	urlField := zap.String("url", utils.SanitizeURL(url))
	var lastErr *Error

	for i := 0; i <= h.maxRetries; i++ {
		if err := h.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Classify(h.provider, ctx.Err())
			}
			return newError(h.provider, KindRateLimited, 0, fmt.Errorf("local rate limiter: %w", err))
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return newError(h.provider, KindUnsupported, 0, fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		wait := h.backoff(i)
		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = Classify(h.provider, err)
			h.appLogger.Warn("Provider request failed", zap.String("provider", h.provider), urlField, zap.Int("attempt", i+1), zap.Error(err))
		} else {
			data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				lastErr = newError(h.provider, KindRateLimited, resp.StatusCode, fmt.Errorf("rate limited: %s", resp.Status))
				if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
					wait = ra
				}
			case resp.StatusCode >= 500:
				lastErr = newError(h.provider, KindUnavailable, resp.StatusCode, fmt.Errorf("upstream error: %s", resp.Status))
			case resp.StatusCode >= 400:
				// Client errors do not get better by retrying.
				return newError(h.provider, KindUnavailable, resp.StatusCode, fmt.Errorf("request rejected: %s: %s", resp.Status, truncateBody(data)))
			case readErr != nil:
				lastErr = Classify(h.provider, readErr)
			default:
				if out == nil {
					return nil
				}
				if err := json.Unmarshal(data, out); err != nil {
					return newError(h.provider, KindMalformed, resp.StatusCode, fmt.Errorf("decode response: %w", err))
				}
				return nil
			}
			h.appLogger.Debug("Provider returned retryable status", zap.String("provider", h.provider), urlField, zap.Int("statusCode", resp.StatusCode), zap.Int("attempt", i+1))
		}

		if ctx.Err() != nil {
			return Classify(h.provider, ctx.Err())
		}
		if i < h.maxRetries {
			if err := h.sleep(ctx, wait); err != nil {
				return Classify(h.provider, err)
			}
		}
	}
	return lastErr
}

func (h *httpClient) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * h.baseBackoff
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		d := time.Duration(secs) * time.Second
		if d > maxBackoff {
			d = maxBackoff
		}
		return d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > maxBackoff {
			d = maxBackoff
		}
		return d
	}
	return 0
}

func truncateBody(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
