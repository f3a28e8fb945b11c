package ledgercache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/pda"
)

const defaultFetchTimeout = 30 * time.Second

type cache struct {
	programID    ledger.PublicKey
	reader       ledger.Reader
	decoder      *account.Decoder
	seeds        SeedFunc
	commitment   ledger.Commitment
	fetchTimeout time.Duration
	log          Logger
	hooks        Hooks
	snap         *snapshotTier
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	addrs   map[string]pda.Address
	subs    map[string]map[uint64]func(Entry)
	nextSub uint64
	closed  bool

	// flights are keyed by key + read sequence so a finishing read is never
	// joined by a read started after it applied.
	flights singleflight.Group
	notify  *dispatcher

	// reads run under the cache lifetime, not the caller's ctx
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	teardown sync.Once
	closeErr error
}

func newCache(opts Options) (*cache, error) {
	if opts.ProgramID.IsZero() {
		return nil, fmt.Errorf("ledgercache: program id is required")
	}
	if opts.Commitment != "" && !opts.Commitment.Valid() {
		return nil, fmt.Errorf("ledgercache: unknown commitment %q", opts.Commitment)
	}

	c := &cache{
		programID: opts.ProgramID,
		reader:    opts.Reader,
		decoder:   opts.Decoder,
		seeds:     opts.Seeds,
		now:       opts.Now,
		entries:   make(map[string]*entry),
		addrs:     make(map[string]pda.Address),
		subs:      make(map[string]map[uint64]func(Entry)),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.commitment = coalesce(opts.Commitment, ledger.CommitmentConfirmed)
	c.fetchTimeout = coalesce(opts.FetchTimeout, defaultFetchTimeout)
	if c.decoder == nil {
		c.decoder = account.NewDecoder(account.CounterDiscriminator)
	}
	if c.seeds == nil {
		c.seeds = DefaultSeeds
	}
	if c.now == nil {
		c.now = time.Now
	}

	if opts.Snapshots != nil {
		snap, err := newSnapshotTier(opts.ProgramID, *opts.Snapshots, c.log, c.hooks)
		if err != nil {
			return nil, err
		}
		c.snap = snap
	}

	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	c.notify = newDispatcher()
	return c, nil
}

// Close stops reads, drains queued subscriber callbacks and releases the
// snapshot tier. If ctx ends first, Close returns ctx.Err() and a later Close
// finishes the teardown. Close must not be called from a Subscribe callback:
// it would wait on its own callback until ctx ends.
func (c *cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.notify.stop()
	select {
	case <-c.notify.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.teardown.Do(func() {
		if c.snap != nil {
			c.closeErr = c.snap.close(ctx)
		}
	})
	return c.closeErr
}

func (c *cache) Get(ctx context.Context, key string) (Entry, error) {
	e, err := c.entryFor(ctx, key)
	if err != nil {
		return Entry{Key: key, Status: StatusError, Err: err}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return e.snapshot(), ErrClosed
	}
	if c.reader != nil && e.status != StatusLoading && (e.status == StatusIdle || e.stale) {
		c.startLocked(e)
	}
	return e.snapshot(), nil
}

func (c *cache) Fetch(ctx context.Context, key string) (Entry, error) {
	e, err := c.entryFor(ctx, key)
	if err != nil {
		return Entry{Key: key, Status: StatusError, Err: err}, err
	}

	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return e.snapshot(), ErrClosed
	}
	if c.reader == nil {
		c.failLocked(e, ledger.Wrap(ledger.KindConnectionUnavailable, "readAccount", fmt.Errorf("no ledger connection")))
		out := e.snapshot()
		c.mu.Unlock()
		return out, out.Err
	}
	if e.status == StatusSuccess && !e.stale {
		out := e.snapshot()
		c.mu.Unlock()
		return out, nil
	}
	var ch <-chan singleflight.Result
	if e.status == StatusLoading {
		// joined under c.mu: the read cannot apply and leave the group meanwhile
		ch = c.flights.DoChan(flightKey(e), c.readFn(e))
	} else {
		ch = c.startLocked(e)
	}
	c.mu.Unlock()

	select {
	case r := <-ch:
		out := r.Val.(Entry)
		return out, out.Err
	case <-ctx.Done():
		out, _ := c.Peek(key)
		return out, ctx.Err()
	}
}

func (c *cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Address derives the address of key without creating an entry for it.
func (c *cache) Address(key string) (pda.Address, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return pda.Address{}, ErrClosed
	}
	addr, ok := c.addrs[key]
	c.mu.Unlock()
	if ok {
		return addr, nil
	}
	return c.derive(key)
}

func (c *cache) derive(key string) (pda.Address, error) {
	addr, err := pda.Find(c.programID, c.seeds(key)...)
	if err != nil {
		c.log.Error("address derivation failed", Fields{"key": key, "err": err})
		return pda.Address{}, err
	}
	c.mu.Lock()
	if prev, ok := c.addrs[key]; ok {
		addr = prev
	} else {
		c.addrs[key] = addr
	}
	c.mu.Unlock()
	return addr, nil
}

func (c *cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// Close waits for this before releasing the snapshot tier
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	var serr error
	if c.snap != nil {
		serr = c.snap.invalidate(ctx, key)
	}
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.closed {
		c.invalidateLocked(e)
	}
	c.mu.Unlock()
	return serr
}

func (c *cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var keys []string
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if err := c.Invalidate(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *cache) Subscribe(key string, fn func(Entry)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	m := c.subs[key]
	if m == nil {
		m = make(map[uint64]func(Entry))
		c.subs[key] = m
	}
	m[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if m := c.subs[key]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(c.subs, key)
				}
			}
			c.mu.Unlock()
		})
	}
}

// entryFor returns the entry for key, creating it idle with its derived
// address. Derivation and snapshot loading run outside the lock.
func (c *cache) entryFor(ctx context.Context, key string) (*entry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := c.entries[key]
	if !ok {
		// the snapshot load below must finish before Close releases the tier
		c.wg.Add(1)
		defer c.wg.Done()
	}
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	addr, err := c.Address(key)
	if err != nil {
		return nil, err
	}
	var (
		snap   Snapshot
		seeded bool
	)
	if c.snap != nil {
		snap, seeded = c.snap.load(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	e = &entry{key: key, addr: addr, status: StatusIdle}
	if seeded {
		e.tag = snap.Tag
		e.fetchedAt = snap.FetchedAt
		if snap.Initialized {
			e.value = &account.CounterState{Count: snap.Count, Bump: snap.Bump}
		}
		c.log.Debug("entry seeded from snapshot", Fields{"key": key, "fetchedAt": snap.FetchedAt})
	}
	c.entries[key] = e
	return e, nil
}

func flightKey(e *entry) string { return e.key + "#" + strconv.FormatUint(e.seq, 10) }

// startLocked moves e to loading and starts exactly one read for it.
func (c *cache) startLocked(e *entry) <-chan singleflight.Result {
	e.seq++
	e.status = StatusLoading
	c.emitLocked(e)
	c.wg.Add(1)
	return c.flights.DoChan(flightKey(e), c.readFn(e))
}

func (c *cache) readFn(e *entry) func() (interface{}, error) {
	return func() (interface{}, error) {
		defer c.wg.Done()
		return c.read(e), nil
	}
}

// read performs reads until no invalidation arrived while one was running.
// The entry stays loading across repeated reads.
func (c *cache) read(e *entry) Entry {
	for {
		var obs uint64
		var obsOK bool
		if c.snap != nil {
			obs, obsOK = c.snap.observe(c.baseCtx, e.key)
		}

		start := c.now()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.fetchTimeout)
		raw, err := c.reader.ReadAccount(ctx, e.addr.Key, c.commitment)
		cancel()
		elapsed := c.now().Sub(start)

		var dec account.Decoded
		if err == nil {
			dec = c.decoder.Decode(raw)
		}

		c.mu.Lock()
		if err != nil {
			c.failLocked(e, asTransportError(err))
		} else {
			c.applyLocked(e, dec)
		}
		again := e.refetch && !c.closed
		e.refetch = false
		if again {
			e.stale = true
			e.status = StatusLoading
			c.emitLocked(e)
		}
		out := e.snapshot()
		fields := entryFields(e)
		c.mu.Unlock()

		if err != nil {
			fields["err"] = out.Err
			c.log.Warn("account read failed", fields)
			c.hooks.FetchFailed(e.key, out.Err)
		} else {
			if dec.Degraded() {
				fields["tag"] = dec.Tag.String()
				fields["cause"] = dec.Cause
				c.log.Debug("account decode degraded", fields)
				c.hooks.DecodeDegraded(e.key, dec.Tag, dec.Cause)
			}
			c.hooks.FetchCompleted(e.key, dec.Tag, elapsed)
			if c.snap != nil && obsOK {
				c.snap.save(c.baseCtx, e.key, snapshotOf(out), obs)
			}
		}
		if !again {
			return out
		}
	}
}

func (c *cache) applyLocked(e *entry, dec account.Decoded) {
	e.status = StatusSuccess
	e.err = nil
	e.stale = false
	e.tag = dec.Tag
	e.fetchedAt = c.now()
	if dec.Initialized() {
		st := dec.State
		e.value = &st
	} else {
		e.value = nil
	}
	c.emitLocked(e)
}

// failLocked keeps value, tag and fetchedAt so readers still see the last good read.
func (c *cache) failLocked(e *entry, err error) {
	e.status = StatusError
	e.err = &FetchError{Key: e.key, Address: e.addr.Key, Err: err}
	c.emitLocked(e)
}

func (c *cache) invalidateLocked(e *entry) {
	switch e.status {
	case StatusIdle:
		// never read; the next Get reads anyway
		if e.value != nil && !e.stale {
			e.stale = true
			c.emitLocked(e)
		}
	case StatusLoading:
		e.stale = true
		e.refetch = true
	case StatusSuccess, StatusError:
		e.stale = true
		if c.reader != nil {
			c.startLocked(e)
		} else {
			c.emitLocked(e)
		}
	}
	c.log.Debug("entry invalidated", entryFields(e))
}

// emitLocked queues the current state of e for its subscribers.
func (c *cache) emitLocked(e *entry) {
	m := c.subs[e.key]
	if len(m) == 0 {
		return
	}
	fns := make([]func(Entry), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	snap := e.snapshot()
	key := e.key
	c.notify.push(func() {
		for _, fn := range fns {
			c.deliver(key, fn, snap)
		}
	})
}

func (c *cache) deliver(key string, fn func(Entry), e Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("subscriber panicked", Fields{"key": key, "panic": r})
			c.hooks.SubscriberPanic(key, r)
		}
	}()
	fn(e)
}
