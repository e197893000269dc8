package monitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"wallet-watch/agent/internal/metrics"
	"wallet-watch/agent/internal/providers"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/tracing"
	"wallet-watch/shared/types"
)

// Attempt records one provider call made while fetching an entry.
type Attempt struct {
	Provider   string              `json:"provider"`
	Kind       providers.ErrorKind `json:"kind,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS int64               `json:"durationMs"`
}

// FetchOutcome is the result of walking the provider chain for one entry.
// It is never persisted.
type FetchOutcome struct {
	Provider           string
	Events             []providers.ActivityEvent
	Attempts           []Attempt
	AllProvidersFailed bool
}

// ProviderSource yields the ordered providers for a chain.
type ProviderSource interface {
	ForChain(chain types.Chain) []providers.Provider
}

// Fetcher asks providers in order until one answers. An empty answer counts
// as an answer.
type Fetcher struct {
	source    ProviderSource
	timeout   func(provider string) time.Duration
	appLogger *logger.Logger
	tracer    trace.Tracer
}

func NewFetcher(source ProviderSource, timeout func(provider string) time.Duration, appLogger *logger.Logger) *Fetcher {
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	return &Fetcher{
		source:    source,
		timeout:   timeout,
		appLogger: appLogger,
		tracer:    tracing.Tracer("wallet-watch/monitor"),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, chain types.Chain, address string, since time.Time) FetchOutcome {
	var out FetchOutcome
	list := f.source.ForChain(chain)
	if len(list) == 0 {
		out.AllProvidersFailed = true
		out.Attempts = []Attempt{{Kind: providers.KindUnsupported, Error: fmt.Sprintf("no provider configured for chain %s", chain)}}
		return out
	}

	for _, p := range list {
		start := time.Now()
		events, err := f.call(ctx, p, chain, address, since)
		elapsed := time.Since(start)
		metrics.ProviderLatency.WithLabelValues(p.Name(), chain.String()).Observe(elapsed.Seconds())

		attempt := Attempt{Provider: p.Name(), DurationMS: elapsed.Milliseconds()}
		if err == nil {
			metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), chain.String(), "ok").Inc()
			out.Attempts = append(out.Attempts, attempt)
			out.Provider = p.Name()
			out.Events = events
			return out
		}

		pe := providers.Classify(p.Name(), err)
		attempt.Kind = pe.Kind
		attempt.Error = pe.Error()
		out.Attempts = append(out.Attempts, attempt)
		metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), chain.String(), string(pe.Kind)).Inc()
		f.appLogger.Warn("Provider failed, falling back",
			zap.String("provider", p.Name()),
			zap.String("chain", chain.String()),
			zap.String("address", address),
			zap.String("kind", string(pe.Kind)),
			zap.Error(err))
	}

	out.AllProvidersFailed = true
	return out
}

// call enforces the provider deadline even when the provider ignores its
// context: the result is abandoned once the timer fires.
func (f *Fetcher) call(ctx context.Context, p providers.Provider, chain types.Chain, address string, since time.Time) ([]providers.ActivityEvent, error) {
	timeout := f.timeout(p.Name())
	ctx, span := f.tracer.Start(ctx, "provider.fetch", trace.WithAttributes(
		attribute.String("provider", p.Name()),
		attribute.String("chain", chain.String()),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		events []providers.ActivityEvent
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &providers.Error{Provider: p.Name(), Kind: providers.KindUnavailable, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		evs, err := p.FetchActivity(callCtx, address, chain, since)
		ch <- result{events: evs, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var r result
	select {
	case r = <-ch:
	case <-timer.C:
		r.err = &providers.Error{Provider: p.Name(), Kind: providers.KindTimeout, Err: fmt.Errorf("no answer within %s", timeout)}
	case <-ctx.Done():
		r.err = providers.Classify(p.Name(), ctx.Err())
	}
	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, "provider failed")
		return nil, r.err
	}
	span.SetAttributes(attribute.Int("events", len(r.events)))
	return r.events, nil
}
