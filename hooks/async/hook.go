// Package asynchook moves hook delivery off the fetch goroutines.
// Events are dropped when the queue is full.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
//
//	cache, _ := ledgercache.New(ledgercache.Options{ProgramID: id, Reader: client, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/account"
)

type Hooks struct {
	inner   ledgercache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ ledgercache.Hooks = (*Hooks)(nil)

func New(inner ledgercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events. Events after Close are dropped.
// The cache must be closed first.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchCompleted(k string, t account.Tag, d time.Duration) {
	h.try(func() { h.inner.FetchCompleted(k, t, d) })
}
func (h *Hooks) FetchFailed(k string, err error) { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) DecodeDegraded(k string, t account.Tag, cause error) {
	h.try(func() { h.inner.DecodeDegraded(k, t, cause) })
}
func (h *Hooks) SnapshotHealed(k, r string)      { h.try(func() { h.inner.SnapshotHealed(k, r) }) }
func (h *Hooks) SnapshotRejected(k string)       { h.try(func() { h.inner.SnapshotRejected(k) }) }
func (h *Hooks) GenError(k string, err error)    { h.try(func() { h.inner.GenError(k, err) }) }
func (h *Hooks) SubscriberPanic(k string, r any) { h.try(func() { h.inner.SubscriberPanic(k, r) }) }
