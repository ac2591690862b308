package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope     = "calmirror/sync"
	spanMirror    = "sync.mirror"
	metricCreated = "calmirror.sync.events.created"
	metricUpdated = "calmirror.sync.events.updated"
	metricDeleted = "calmirror.sync.events.deleted"
	metricErrors  = "calmirror.sync.errors"
)

// Engine wraps the [Reconciler] with telemetry and the daemon schedule.
// Create one with [NewEngine]; run a single pass with [Engine.RunOnce] or the
// scheduled loop with [Engine.Run].
type Engine struct {
	reconciler *Reconciler
	log        *slog.Logger

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer     trace.Tracer
	cntCreated metric.Int64Counter
	cntUpdated metric.Int64Counter
	cntDeleted metric.Int64Counter
	cntErrors  metric.Int64Counter
}

// NewEngine creates an Engine around an already-constructed reconciler.
func NewEngine(reconciler *Reconciler, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		reconciler: reconciler,
		log:        logger,

		tracer:     tracer,
		cntCreated: mustCounter(metricCreated, "Number of mirrors created during sync"),
		cntUpdated: mustCounter(metricUpdated, "Number of mirrors updated during sync"),
		cntDeleted: mustCounter(metricDeleted, "Number of mirrors deleted during sync"),
		cntErrors:  mustCounter(metricErrors, "Number of errors recorded during sync"),
	}
}

// RunOnce performs a single mirror pass, recording a trace span and metrics.
func (e *Engine) RunOnce(ctx context.Context) Result {
	ctx, span := e.tracer.Start(ctx, spanMirror)
	defer span.End()

	res := e.reconciler.Run(ctx)

	if res.Created > 0 {
		e.cntCreated.Add(ctx, int64(res.Created))
	}
	if res.Updated > 0 {
		e.cntUpdated.Add(ctx, int64(res.Updated))
	}
	if res.Deleted > 0 {
		e.cntDeleted.Add(ctx, int64(res.Deleted))
	}
	if len(res.Errors) > 0 {
		e.cntErrors.Add(ctx, int64(len(res.Errors)))
	}

	span.SetAttributes(
		attribute.Int("sync.created", res.Created),
		attribute.Int("sync.updated", res.Updated),
		attribute.Int("sync.deleted", res.Deleted),
		attribute.Int("sync.errors", len(res.Errors)),
	)
	return res
}

// Run starts the daemon schedule and blocks until ctx is cancelled. Passes
// never overlap: a tick that fires while the previous pass is still running
// is skipped, so the engine sees at most one active run at a time.
func (e *Engine) Run(ctx context.Context, schedule string) error {
	cl := cronLogger{log: e.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.SkipIfStillRunning(cl),
	))

	_, err := c.AddFunc(schedule, func() {
		e.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	// Run an immediate first pass; subsequent passes follow the schedule.
	e.RunOnce(ctx)

	c.Start()
	<-ctx.Done()
	e.log.Info("sync engine shutting down")

	// Wait for an in-flight pass to finish before returning.
	<-c.Stop().Done()
	return ctx.Err()
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
