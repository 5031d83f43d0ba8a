// Package obs wires the engine's tracing and metrics: an OpenTelemetry
// tracer provider exporting to stdout (grounded on
// evalgo-org-eve/otel/init.go's Provider/Init shape, minus the OTLP
// network exporter, which has no operator-configured collector in
// scope here) and a fixed set of Prometheus counters/histograms
// registered via promauto (evalgo-org-eve/tracing/metrics.go), served
// by cmd/mew's diagnostics subcommand.
package obs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the engine's single tracer, obtained once InitStdout has
// run (or a no-op tracer if it hasn't).
var Tracer trace.Tracer = otel.Tracer("mew")

// Provider wraps the stdout-exporting TracerProvider so callers can
// shut it down on process exit.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// InitStdout sets the global tracer provider to one that writes spans
// as JSON to stdout, for local debugging (spec.md scopes tracing to a
// single in-process engine, so no network exporter is wired).
func InitStdout(ctx context.Context) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("obs: creating stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	Tracer = otel.Tracer("mew")
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the provider. Safe to call on a nil
// Provider (InitStdout was never called).
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

// StartSpan starts a child span under Tracer. Callers must defer
// endSpan-style completion via EndSpan.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name)
}

// EndSpan records err on span (if non-nil) and ends it. Named to match
// the "endSpan(span, err)" pattern engine/txn/wal call sites use:
//
//	ctx, span := obs.StartSpan(ctx, "txn.commit")
//	defer func() { obs.EndSpan(span, err) }()
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Metrics holds every Prometheus collector the engine publishes.
// Constructed once per process and served from cmd/mew's diagnostics
// subcommand via promhttp.
type Metrics struct {
	TxnCommits           prometheus.Counter
	TxnRollbacks         prometheus.Counter
	WALSyncSeconds       prometheus.Histogram
	RuleFirings          prometheus.Counter
	ConstraintViolations *prometheus.CounterVec
}

// NewMetrics registers and returns the engine's metric set against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TxnCommits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mew",
			Name:      "txn_commits_total",
			Help:      "Total number of transactions successfully committed.",
		}),
		TxnRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mew",
			Name:      "txn_rollbacks_total",
			Help:      "Total number of transactions rolled back.",
		}),
		WALSyncSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mew",
			Name:      "wal_sync_seconds",
			Help:      "Duration of journal fsync calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		RuleFirings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mew",
			Name:      "rule_firings_total",
			Help:      "Total number of rule productions fired.",
		}),
		ConstraintViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mew",
			Name:      "constraint_violations_total",
			Help:      "Total number of constraint violations detected, by severity.",
		}, []string{"severity"}),
	}
}
