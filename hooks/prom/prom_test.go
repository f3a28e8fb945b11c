package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

func TestHooksCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "test")
	if err != nil {
		t.Fatal(err)
	}

	h.FetchCompleted("counter", account.TagStructured, 20*time.Millisecond)
	h.FetchCompleted("counter", account.TagStructured, 30*time.Millisecond)
	h.FetchCompleted("counter", account.TagUninitialized, time.Millisecond)
	h.FetchFailed("counter", ledger.Wrap(ledger.KindConnectionUnavailable, "readAccount", errors.New("refused")))
	h.DecodeDegraded("counter", account.TagFallback, errors.New("mismatch"))
	h.SnapshotHealed("snap:x", "corrupt")
	h.SnapshotRejected("snap:x")

	if v := testutil.ToFloat64(h.fetches.WithLabelValues("structured")); v != 2 {
		t.Fatalf("structured fetches=%v want 2", v)
	}
	if v := testutil.ToFloat64(h.fetchFailures.WithLabelValues("connection_unavailable")); v != 1 {
		t.Fatalf("failures=%v want 1", v)
	}
	if v := testutil.ToFloat64(h.degraded.WithLabelValues("fallback")); v != 1 {
		t.Fatalf("degraded=%v want 1", v)
	}
	if v := testutil.ToFloat64(h.snapshotHealed.WithLabelValues("corrupt")); v != 1 {
		t.Fatalf("healed=%v want 1", v)
	}
	if v := testutil.ToFloat64(h.snapshotRejected); v != 1 {
		t.Fatalf("rejected=%v want 1", v)
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, ""); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
