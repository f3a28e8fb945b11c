package ledgercache

import (
	"time"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/pda"
)

type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time copy of a cached key.
//
// Value is nil until a read finds an initialized account, and stays set when a
// later read fails. Tag tells which decode path produced Value.
type Entry struct {
	Key       string
	Address   pda.Address
	Value     *account.CounterState
	Tag       account.Tag
	Status    Status
	Err       error
	Stale     bool
	FetchedAt time.Time
}

// Initialized reports whether the last successful read found a record.
func (e Entry) Initialized() bool { return e.Value != nil }

// ErrKind is the ledger.Kind of Err, or KindUnknown.
func (e Entry) ErrKind() ledger.Kind {
	if e.Err == nil {
		return ledger.KindUnknown
	}
	return ledger.KindOf(e.Err)
}

type entry struct {
	key       string
	addr      pda.Address
	value     *account.CounterState
	tag       account.Tag
	status    Status
	err       error
	stale     bool
	fetchedAt time.Time

	seq     uint64 // bumped on every started read
	refetch bool   // invalidated while loading
}

func (e *entry) snapshot() Entry {
	out := Entry{
		Key:       e.key,
		Address:   e.addr,
		Tag:       e.tag,
		Status:    e.status,
		Err:       e.err,
		Stale:     e.stale,
		FetchedAt: e.fetchedAt,
	}
	if e.value != nil {
		v := *e.value
		out.Value = &v
	}
	return out
}
