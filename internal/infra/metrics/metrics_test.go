package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"memochain/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAppend(nil)
	m.ObserveMining(time.Second, nil)
	m.SetLedgerSize(1, 1)
	m.ObserveIndexProbe("negative")
	m.ObserveIndexRebuild()
	m.ObserveVerification("hash", true)
	m.ObserveValidation(true)
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestAppendOutcomes(t *testing.T) {
	m := New()
	m.ObserveAppend(nil)
	m.ObserveAppend(fmt.Errorf("wrap: %w", domain.ErrAlreadyRecorded))
	m.ObserveAppend(fmt.Errorf("%w: bad", domain.ErrValidation))
	m.ObserveAppend(domain.ErrMiningTimeout)
	m.ObserveAppend(errors.New("disk full"))

	for outcome, want := range map[string]float64{"sealed": 1, "duplicate": 1, "invalid": 1, "timeout": 1, "error": 1} {
		if got := testutil.ToFloat64(m.appends.WithLabelValues(outcome)); got != want {
			t.Fatalf("outcome %s: got %v want %v", outcome, got, want)
		}
	}
}

func TestLedgerSizeGauges(t *testing.T) {
	m := New()
	m.SetLedgerSize(4, 3)
	if got := testutil.ToFloat64(m.chainHeight); got != 4 {
		t.Fatalf("unexpected height: %v", got)
	}
	if got := testutil.ToFloat64(m.transactions); got != 3 {
		t.Fatalf("unexpected tx gauge: %v", got)
	}
}
