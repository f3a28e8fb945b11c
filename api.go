package ledgercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/ledgercache/account"
	c "github.com/unkn0wn-root/ledgercache/codec"
	gen "github.com/unkn0wn-root/ledgercache/genstore"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/pda"
	pr "github.com/unkn0wn-root/ledgercache/provider"
)

// SeedFunc maps a logical key to the seeds of its derived address.
type SeedFunc func(key string) [][]byte

// SetCostFunc reports the provider cost of a stored snapshot.
type SetCostFunc func(storageKey string, raw []byte) int64

// Cache is the process-wide state cache. Entries returned are copies.
type Cache interface {
	// Get returns the current entry and starts a read if the entry is idle or
	// stale and a Reader is configured. It never waits for the read.
	Get(ctx context.Context, key string) (Entry, error)
	// Fetch waits for the in-flight read, or starts one if the entry is not a
	// fresh success. ctx bounds only the wait.
	Fetch(ctx context.Context, key string) (Entry, error)
	// Peek returns the entry without side effects.
	Peek(key string) (Entry, bool)

	// Invalidate marks key stale and schedules a refetch.
	Invalidate(ctx context.Context, key string) error
	// InvalidatePrefix invalidates every known key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error

	// Subscribe registers fn for every status transition of key.
	// Callbacks run in transition order on a single dispatch goroutine.
	Subscribe(key string, fn func(Entry)) (unsubscribe func())

	// Address returns the derived address of key, computing it once.
	Address(key string) (pda.Address, error)

	Close(context.Context) error
}

// Options configure New. Only ProgramID is required.
type Options struct {
	ProgramID ledger.PublicKey
	// Reader is the shared ledger connection; nil means no live connection,
	// Get never reads and Fetch reports ConnectionUnavailable.
	Reader       ledger.Reader
	Decoder      *account.Decoder  // nil => account.NewDecoder(account.CounterDiscriminator)
	Seeds        SeedFunc          // nil => [][]byte{[]byte(key)}
	Commitment   ledger.Commitment // "" => confirmed
	FetchTimeout time.Duration     // 0 => 30s
	Logger       Logger            // nil => NopLogger
	Hooks        Hooks             // nil => NopHooks
	Snapshots    *SnapshotOptions  // nil => no snapshot tier
	Now          func() time.Time  // nil => time.Now
}

// SnapshotOptions enable the snapshot tier. Provider and Codec are required.
type SnapshotOptions struct {
	Namespace       string // "" => "counter"
	Provider        pr.Provider
	Codec           c.Codec[Snapshot]
	GenStore        gen.GenStore // nil => in-process LocalGenStore
	TTL             time.Duration // 0 => 10m
	CleanupInterval time.Duration // local gens; 0 => 1h
	GenRetention    time.Duration // local gens; 0 => 30d
	ComputeSetCost  SetCostFunc   // default 1
}

func New(opts Options) (Cache, error) {
	return newCache(opts)
}

// DefaultSeeds uses the key itself as the only seed, e.g. "counter".
func DefaultSeeds(key string) [][]byte { return [][]byte{[]byte(key)} }
