package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"wallet-watch/agent/internal/dispatch"
	"wallet-watch/agent/internal/metrics"
	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/tracing"
	"wallet-watch/shared/types"
)

// WatchSource is the part of the watch registry a cycle needs.
type WatchSource interface {
	ListAll(ctx context.Context) ([]models.WatchEntry, error)
	AdvanceCheckpoint(ctx context.Context, id uint, to time.Time) (bool, error)
}

// AlertSink persists alerts idempotently.
type AlertSink interface {
	AlertLookup
	CreateAlertIfAbsent(ctx context.Context, a *models.Alert) (bool, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, a *models.Alert) dispatch.Summary
}

type EntryFetcher interface {
	Fetch(ctx context.Context, chain types.Chain, address string, since time.Time) FetchOutcome
}

type Options struct {
	Concurrency     int
	JobTimeout      time.Duration
	DispatchTimeout time.Duration
}

// Orchestrator runs one monitor cycle over every watch entry.
type Orchestrator struct {
	watches   WatchSource
	alerts    AlertSink
	fetcher   EntryFetcher
	detector  *Detector
	notifier  Notifier
	opts      Options
	appLogger *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrchestrator(watches WatchSource, alerts AlertSink, fetcher EntryFetcher, detector *Detector, notifier Notifier, opts Options, appLogger *logger.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 20 * time.Second
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	return &Orchestrator{
		watches:   watches,
		alerts:    alerts,
		fetcher:   fetcher,
		detector:  detector,
		notifier:  notifier,
		opts:      opts,
		appLogger: appLogger,
		tracer:    tracing.Tracer("wallet-watch/monitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one cycle. It only returns an error when the watch registry
// cannot be read; per-entry failures are reported in the RunReport.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := newReport(o.now())
	ctx, span := o.tracer.Start(ctx, "monitor.cycle", trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer span.End()

	jobCtx := ctx
	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}

	runLogger := o.appLogger.With(zap.String("runId", report.RunID))

	entries, err := o.watches.ListAll(jobCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list watch entries")
		runLogger.Error("Monitor cycle could not load watch entries", zap.Error(err))
		return nil, fmt.Errorf("load watch entries: %w", err)
	}
	runLogger.Info("Monitor cycle started", zap.Int("entries", len(entries)), zap.Int("concurrency", o.opts.Concurrency))

	results := make([]EntryResult, len(entries))
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var g errgroup.Group
	for i := range entries {
		if jobCtx.Err() != nil || sem.Acquire(jobCtx, 1) != nil {
			for j := i; j < len(entries); j++ {
				results[j] = baseResult(entries[j])
				results[j].Status = StatusSkipped
				results[j].Error = "cycle deadline reached before the entry was started"
			}
			break
		}
		i := i
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = o.processEntry(jobCtx, entries[i], runLogger)
			return nil
		})
	}
	_ = g.Wait()

	report.finish(results, o.now())
	for _, res := range results {
		metrics.EntriesProcessedTotal.WithLabelValues(string(res.Status)).Inc()
	}
	metrics.CycleDuration.Observe(float64(report.DurationMS) / 1000)
	span.SetAttributes(
		attribute.Int("entries", len(entries)),
		attribute.Int("wallets_checked", report.WalletsChecked),
		attribute.Int("alerts_created", report.AlertsCreated),
	)
	runLogger.Info("Monitor cycle finished",
		zap.Int("walletsChecked", report.WalletsChecked),
		zap.Int("alertsCreated", report.AlertsCreated),
		zap.Int("failed", report.count(StatusFailed)),
		zap.Int("abandoned", report.count(StatusAbandoned)),
		zap.Int("skipped", report.count(StatusSkipped)),
		zap.Int64("durationMs", report.DurationMS))
	return report, nil
}

func baseResult(e models.WatchEntry) EntryResult {
	return EntryResult{WatchEntryID: e.ID, Address: e.Address, Chain: e.Chain}
}

func (o *Orchestrator) processEntry(jobCtx context.Context, entry models.WatchEntry, runLogger *logger.Logger) (res EntryResult) {
	res = baseResult(entry)
	ctx, span := o.tracer.Start(jobCtx, "monitor.entry", trace.WithAttributes(
		attribute.Int64("watch_entry_id", int64(entry.ID)),
		attribute.String("chain", entry.Chain.String()),
	))
	defer func() {
		span.SetAttributes(attribute.String("status", string(res.Status)))
		if res.Status == StatusFailed {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
	}()

	entryLogger := runLogger.With(zap.Uint("watchEntryId", entry.ID), zap.String("chain", entry.Chain.String()), zap.String("address", entry.Address))

	// Provider calls carry their own deadlines and are allowed to finish.
	outcome := o.fetcher.Fetch(context.WithoutCancel(ctx), entry.Chain, entry.Address, entry.LastCheckedAt)
	res.Attempts = outcome.Attempts
	res.Provider = outcome.Provider
	if outcome.AllProvidersFailed {
		res.Status = StatusFailed
		res.Error = describeAttempts(outcome.Attempts)
		metrics.FetchFailuresTotal.WithLabelValues(entry.Chain.String()).Inc()
		entryLogger.Warn("All providers failed for watch entry", zap.String("error", res.Error))
		return res
	}
	res.EventsFetched = len(outcome.Events)

	if jobCtx.Err() != nil {
		res.Status = StatusAbandoned
		res.Error = "cycle deadline reached before persistence"
		return res
	}

	det, err := o.detector.Detect(ctx, entry, outcome.Provider, outcome.Events)
	if err != nil {
		return o.fail(jobCtx, res, err, entryLogger)
	}
	res.NewEvents = len(det.Candidates)

	var created []*models.Alert
	var persistErr error
	for _, a := range det.Candidates {
		ok, err := o.alerts.CreateAlertIfAbsent(ctx, a)
		if err != nil {
			persistErr = err
			break
		}
		if !ok {
			res.Duplicates++
			metrics.DuplicateAlertsTotal.Inc()
			continue
		}
		created = append(created, a)
		metrics.AlertsCreatedTotal.WithLabelValues(a.Chain.String(), string(a.Classification)).Inc()
	}
	res.AlertsCreated = len(created)

	// Alerts that made it to the store are announced even if the entry then
	// fails: the next cycle would treat them as duplicates and stay silent.
	o.notify(ctx, created, &res)

	if persistErr != nil {
		return o.fail(jobCtx, res, fmt.Errorf("persist alert: %w", persistErr), entryLogger)
	}

	if det.NextCheckpoint.After(entry.LastCheckedAt) {
		advanced, err := o.watches.AdvanceCheckpoint(ctx, entry.ID, det.NextCheckpoint)
		if err != nil {
			return o.fail(jobCtx, res, fmt.Errorf("advance checkpoint: %w", err), entryLogger)
		}
		res.CheckpointAdvanced = advanced
	}

	res.Status = StatusOK
	if res.AlertsCreated > 0 {
		entryLogger.Info("Alerts created for watch entry",
			zap.String("provider", res.Provider), zap.Int("alerts", res.AlertsCreated), zap.Int("duplicates", res.Duplicates))
	}
	return res
}

func (o *Orchestrator) fail(jobCtx context.Context, res EntryResult, err error, entryLogger *logger.Logger) EntryResult {
	res.Error = err.Error()
	if jobCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		res.Status = StatusAbandoned
		return res
	}
	res.Status = StatusFailed
	entryLogger.Error("Watch entry processing failed", zap.Error(err))
	return res
}

func (o *Orchestrator) notify(ctx context.Context, created []*models.Alert, res *EntryResult) {
	if o.notifier == nil || len(created) == 0 {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.DispatchTimeout)
	defer cancel()
	for _, a := range created {
		sum := o.notifier.Dispatch(dctx, a)
		res.NotificationsSent += sum.Delivered
		res.NotificationsFailed += sum.Failed
	}
}
