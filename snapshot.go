package ledgercache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/ledgercache/account"
	c "github.com/unkn0wn-root/ledgercache/codec"
	gen "github.com/unkn0wn-root/ledgercache/genstore"
	"github.com/unkn0wn-root/ledgercache/internal/keys"
	"github.com/unkn0wn-root/ledgercache/internal/wire"
	"github.com/unkn0wn-root/ledgercache/ledger"
	pr "github.com/unkn0wn-root/ledgercache/provider"
)

const (
	defaultNamespace    = "counter"
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
	defaultSnapshotTTL  = 10 * time.Minute
)

// Snapshot is the persisted form of a successful read.
type Snapshot struct {
	Initialized bool        `json:"initialized" cbor:"1,keyasint" msgpack:"initialized"`
	Count       uint64      `json:"count" cbor:"2,keyasint" msgpack:"count"`
	Bump        uint8       `json:"bump" cbor:"3,keyasint" msgpack:"bump"`
	Tag         account.Tag `json:"tag" cbor:"4,keyasint" msgpack:"tag"`
	FetchedAt   time.Time   `json:"fetchedAt" cbor:"5,keyasint" msgpack:"fetchedAt"`
}

func snapshotOf(e Entry) Snapshot {
	s := Snapshot{Tag: e.Tag, FetchedAt: e.FetchedAt}
	if e.Value != nil {
		s.Initialized = true
		s.Count = e.Value.Count
		s.Bump = e.Value.Bump
	}
	return s
}

// snapshotTier stores snapshots in a Provider, fenced by per-key generations.
type snapshotTier struct {
	ns      string
	program string
	prov    pr.Provider
	codec   c.Codec[Snapshot]
	gen     gen.GenStore
	ttl     time.Duration
	cost    SetCostFunc
	log     Logger
	hooks   Hooks
}

func newSnapshotTier(programID ledger.PublicKey, opts SnapshotOptions, log Logger, hooks Hooks) (*snapshotTier, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("ledgercache: snapshot provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("ledgercache: snapshot codec is required")
	}
	s := &snapshotTier{
		ns:      coalesce(opts.Namespace, defaultNamespace),
		program: programID.String(),
		prov:    opts.Provider,
		codec:   opts.Codec,
		ttl:     coalesce(opts.TTL, defaultSnapshotTTL),
		log:     log,
		hooks:   hooks,
	}
	if opts.ComputeSetCost != nil {
		s.cost = opts.ComputeSetCost
	} else {
		s.cost = func(string, []byte) int64 { return 1 }
	}
	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		s.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}
	return s, nil
}

func (s *snapshotTier) storageKey(key string) string {
	return keys.Snapshot(s.ns, s.program, key)
}

// load returns a snapshot only if its framing, generation and payload are valid.
// Anything else is deleted.
func (s *snapshotTier) load(ctx context.Context, key string) (Snapshot, bool) {
	var zero Snapshot
	k := s.storageKey(key)
	raw, ok, err := s.prov.Get(ctx, k)
	if err != nil {
		s.log.Warn("snapshot get failed", Fields{"key": key, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	g, payload, err := wire.DecodeSnapshot(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return zero, false
	}
	cur, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		s.hooks.GenError(k, err)
		return zero, false
	}
	if g != cur {
		s.heal(ctx, k, "gen_mismatch")
		return zero, false
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.heal(ctx, k, "value_decode")
		return zero, false
	}
	return v, true
}

func (s *snapshotTier) heal(ctx context.Context, storageKey, reason string) {
	_ = s.prov.Del(ctx, storageKey)
	s.log.Debug("snapshot self-healed", Fields{"key": storageKey, "reason": reason})
	s.hooks.SnapshotHealed(storageKey, reason)
}

// observe returns the generation to fence the next save with.
// ok=false means the gen store is unavailable and the save must be skipped.
func (s *snapshotTier) observe(ctx context.Context, key string) (uint64, bool) {
	k := s.storageKey(key)
	g, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		s.log.Warn("gen snapshot error", Fields{"key": k, "err": err})
		s.hooks.GenError(k, err)
		return 0, false
	}
	return g, true
}

// save writes snap iff the generation is still observedGen.
func (s *snapshotTier) save(ctx context.Context, key string, snap Snapshot, observedGen uint64) {
	k := s.storageKey(key)
	cur, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		s.hooks.GenError(k, err)
		return
	}
	if cur != observedGen {
		// invalidated during the read; skip stale write
		s.log.Debug("snapshot save skipped (gen mismatch)", Fields{"key": key, "obs": observedGen, "cur": cur})
		return
	}
	payload, err := s.codec.Encode(snap)
	if err != nil {
		s.log.Warn("snapshot encode failed", Fields{"key": key, "err": err})
		return
	}
	b := wire.EncodeSnapshot(observedGen, payload)
	ok, err := s.prov.Set(ctx, k, b, s.cost(k, b), s.ttl)
	if err != nil {
		s.log.Warn("snapshot set failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		s.log.Debug("snapshot rejected by provider (pressure)", Fields{"key": key})
		s.hooks.SnapshotRejected(k)
	}
}

func (s *snapshotTier) invalidate(ctx context.Context, key string) error {
	k := s.storageKey(key)
	newGen, bumpErr := s.gen.Bump(ctx, k)
	if bumpErr != nil {
		s.hooks.GenError(k, bumpErr)
	}
	delErr := s.prov.Del(ctx, k)
	if bumpErr != nil || delErr != nil {
		s.log.Error("snapshot invalidate failed", Fields{"key": key, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	s.log.Debug("snapshot invalidated (bumped gen + cleared)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (s *snapshotTier) close(ctx context.Context) error {
	// Close gen store first (best effort)
	_ = s.gen.Close(ctx)
	return s.prov.Close(ctx)
}
