package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitStdoutShutdownIsIdempotentFree(t *testing.T) {
	p, err := InitStdout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error shutting down: %v", err)
	}
	// Shutdown on a nil provider (InitStdout never called) must be safe.
	var nilProvider *Provider
	if err := nilProvider.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil provider shutdown to be a no-op, got %v", err)
	}
}

func TestStartSpanEndSpanRecordsError(t *testing.T) {
	_, span := StartSpan(context.Background(), "test.span")
	EndSpan(span, errors.New("boom"))
	// Ending an already-ended span a second time with no error must not panic.
	EndSpan(span, nil)
}

func TestMetricsCountersIncrement(t *testing.T) {
	m := NewMetrics()
	m.TxnCommits.Inc()
	m.TxnRollbacks.Inc()
	m.RuleFirings.Inc()
	m.ConstraintViolations.WithLabelValues("hard").Inc()
	m.WALSyncSeconds.Observe(0.01)

	if got := testutil.ToFloat64(m.TxnCommits); got != 1 {
		t.Fatalf("expected 1 commit, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConstraintViolations.WithLabelValues("hard")); got != 1 {
		t.Fatalf("expected 1 hard violation, got %v", got)
	}
}
