package ledgercache

import (
	"time"

	"github.com/unkn0wn-root/ledgercache/account"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them outside its lock, on fetch goroutines.
type Hooks interface {
	// A read completed and was applied to the entry.
	FetchCompleted(key string, tag account.Tag, elapsed time.Duration)

	// A read failed; the entry moved to error and kept its previous value.
	FetchFailed(key string, err error)

	// Decode recovered from a schema mismatch or truncation.
	// tag ∈ {TagFallback, TagDefaultFilled}
	DecodeDegraded(key string, tag account.Tag, cause error)

	// A snapshot was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SnapshotHealed(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	SnapshotRejected(storageKey string)

	// GenStore snapshot or bump failed.
	GenError(storageKey string, err error)

	// A Subscribe callback panicked; the panic was recovered.
	SubscriberPanic(key string, recovered any)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchCompleted(string, account.Tag, time.Duration) {}
func (NopHooks) FetchFailed(string, error)                         {}
func (NopHooks) DecodeDegraded(string, account.Tag, error)         {}
func (NopHooks) SnapshotHealed(string, string)                     {}
func (NopHooks) SnapshotRejected(string)                           {}
func (NopHooks) GenError(string, error)                            {}
func (NopHooks) SubscriberPanic(string, any)                       {}

// MultiHooks fans every event out to hs in order. Nil members are skipped.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) FetchCompleted(k string, t account.Tag, d time.Duration) {
	for _, h := range m {
		h.FetchCompleted(k, t, d)
	}
}

func (m multiHooks) FetchFailed(k string, err error) {
	for _, h := range m {
		h.FetchFailed(k, err)
	}
}

func (m multiHooks) DecodeDegraded(k string, t account.Tag, cause error) {
	for _, h := range m {
		h.DecodeDegraded(k, t, cause)
	}
}

func (m multiHooks) SnapshotHealed(k, reason string) {
	for _, h := range m {
		h.SnapshotHealed(k, reason)
	}
}

func (m multiHooks) SnapshotRejected(k string) {
	for _, h := range m {
		h.SnapshotRejected(k)
	}
}

func (m multiHooks) GenError(k string, err error) {
	for _, h := range m {
		h.GenError(k, err)
	}
}

func (m multiHooks) SubscriberPanic(k string, v any) {
	for _, h := range m {
		h.SubscriberPanic(k, v)
	}
}
