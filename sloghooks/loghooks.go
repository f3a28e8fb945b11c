// Package sloghooks logs cache hook events through log/slog with sampling
// for the noisy ones.
package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/internal/keys"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery    uint64
	SelfHealEvery uint64
	DegradedEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
	degradedCtr atomic.Uint64
}

var _ ledgercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return keys.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchCompleted(key string, tag account.Tag, elapsed time.Duration) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("ledgercache.fetch_completed",
		"key", key,
		"tag", tag.String(),
		"elapsed", elapsed)
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("ledgercache.fetch_failed",
		"key", key,
		"err", err)
}

func (h *Hooks) DecodeDegraded(key string, tag account.Tag, cause error) {
	if h.l == nil || !sample(h.opts.DegradedEvery, &h.degradedCtr) {
		return
	}
	h.l.Info("ledgercache.decode_degraded",
		"key", key,
		"tag", tag.String(),
		"cause", cause)
}

func (h *Hooks) SnapshotHealed(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("ledgercache.snapshot_healed",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) SnapshotRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("ledgercache.snapshot_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("ledgercache.gen_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SubscriberPanic(key string, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("ledgercache.subscriber_panic",
		"key", key,
		"panic", recovered)
}
