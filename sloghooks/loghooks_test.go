package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/ledgercache/account"
)

func newBuf(level slog.Level) (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))
}

func TestSnapshotKeysAreRedacted(t *testing.T) {
	buf, l := newBuf(slog.LevelDebug)
	h := New(l, Options{})
	h.SnapshotRejected("snap:counter:Prog:alice")
	if strings.Contains(buf.String(), "alice") {
		t.Fatalf("storage key leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "ledgercache.snapshot_rejected") {
		t.Fatalf("missing event: %s", buf.String())
	}
}

func TestSelfHealSampling(t *testing.T) {
	buf, l := newBuf(slog.LevelDebug)
	h := New(l, Options{SelfHealEvery: 3})
	for i := 0; i < 9; i++ {
		h.SnapshotHealed("k", "corrupt")
	}
	if n := strings.Count(buf.String(), "snapshot_healed"); n != 3 {
		t.Fatalf("want 3 sampled lines, got %d", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.FetchFailed("k", errors.New("boom"))
	h.DecodeDegraded("k", account.TagFallback, errors.New("mismatch"))
	h.SubscriberPanic("k", "oops")
}
