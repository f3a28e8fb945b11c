package ledgercache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/pda"
	pr "github.com/unkn0wn-root/ledgercache/provider"
)

var testProgram = ledger.MustPublicKey("J59JrEwy2LXNdME3hurENgiNDJosRM1YHLUECc1JTijh")

// fakeReader serves accounts from memory. With gate set, each read blocks
// until a value is received on gate (or gate is closed).
type fakeReader struct {
	mu   sync.Mutex
	data map[ledger.PublicKey]ledger.RawAccount
	err  error

	gate    chan struct{}
	started chan struct{}
	calls   atomic.Int32
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		data:    make(map[ledger.PublicKey]ledger.RawAccount),
		started: make(chan struct{}, 64),
	}
}

func (r *fakeReader) setCounter(t *testing.T, key string, count uint64) pda.Address {
	t.Helper()
	addr, err := pda.Find(testProgram, DefaultSeeds(key)...)
	if err != nil {
		t.Fatal(err)
	}
	r.setRaw(addr.Key, account.Encode(account.CounterDiscriminator, account.CounterState{Count: count, Bump: addr.Bump}))
	return addr
}

func (r *fakeReader) setRaw(addr ledger.PublicKey, data []byte) {
	r.mu.Lock()
	r.data[addr] = ledger.RawAccount{Present: true, Data: data, Owner: testProgram}
	r.mu.Unlock()
}

func (r *fakeReader) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *fakeReader) ReadAccount(ctx context.Context, addr ledger.PublicKey, _ ledger.Commitment) (ledger.RawAccount, error) {
	r.calls.Add(1)
	select {
	case r.started <- struct{}{}:
	default:
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ledger.RawAccount{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return ledger.RawAccount{}, r.err
	}
	raw := r.data[addr]
	raw.Data = append([]byte(nil), raw.Data...)
	return raw, nil
}

func waitStarted(t *testing.T, r *fakeReader) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not start")
	}
}

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	completed []account.Tag
	failed    []error
	degraded  []error
	healed    []string
	rejected  int
	genErrs   int
	panics    []any
}

func (h *recHooks) FetchCompleted(_ string, tag account.Tag, _ time.Duration) {
	h.mu.Lock()
	h.completed = append(h.completed, tag)
	h.mu.Unlock()
}

func (h *recHooks) FetchFailed(_ string, err error) {
	h.mu.Lock()
	h.failed = append(h.failed, err)
	h.mu.Unlock()
}

func (h *recHooks) DecodeDegraded(_ string, _ account.Tag, cause error) {
	h.mu.Lock()
	h.degraded = append(h.degraded, cause)
	h.mu.Unlock()
}

func (h *recHooks) SnapshotHealed(_ string, reason string) {
	h.mu.Lock()
	h.healed = append(h.healed, reason)
	h.mu.Unlock()
}

func (h *recHooks) SnapshotRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func (h *recHooks) GenError(string, error) {
	h.mu.Lock()
	h.genErrs++
	h.mu.Unlock()
}

func (h *recHooks) SubscriberPanic(_ string, v any) {
	h.mu.Lock()
	h.panics = append(h.panics, v)
	h.mu.Unlock()
}

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	reject bool
	delErr error
	closed bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delErr != nil {
		return p.delErr
	}
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(_ context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *memProvider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: v}
	p.mu.Unlock()
}

type failingGenStore struct {
	bumpErr error
}

func (s *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (s *failingGenStore) Bump(context.Context, string) (uint64, error)     { return 0, s.bumpErr }
func (s *failingGenStore) Cleanup(time.Duration)                            {}
func (s *failingGenStore) Close(context.Context) error                      { return nil }

// countingGenStore keeps every generation at 0 and counts bumps.
type countingGenStore struct {
	bumps atomic.Int32
}

func (s *countingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (s *countingGenStore) Bump(context.Context, string) (uint64, error) {
	s.bumps.Add(1)
	return 0, nil
}
func (s *countingGenStore) Cleanup(time.Duration)       {}
func (s *countingGenStore) Close(context.Context) error { return nil }

var errRefused = errors.New("dial tcp: connection refused")

func newTestCache(t *testing.T, r ledger.Reader, optsOpt func(*Options)) *cache {
	t.Helper()
	opts := Options{ProgramID: testProgram, FetchTimeout: 2 * time.Second}
	if r != nil {
		opts.Reader = r
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	impl, ok := cc.(*cache)
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func fetch(t *testing.T, cc Cache, key string) (Entry, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return cc.Fetch(ctx, key)
}
