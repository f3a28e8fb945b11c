package ledgercache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/ledgercache/ledger"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("ledgercache: closed")

// FetchError annotates a failed read with the key and address it targeted.
// Err always carries a ledger.Kind, so errors.Is(err, ledger.ErrConnectionUnavailable) works.
type FetchError struct {
	Key     string
	Address ledger.PublicKey
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q (%s): %v", e.Key, e.Address, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InvalidateError reports snapshot-tier failures during Invalidate. The
// in-memory entry is always invalidated regardless.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: snapshot gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: snapshot gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: snapshot delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}

// asTransportError gives unclassified read failures the ConnectionUnavailable kind.
func asTransportError(err error) error {
	if ledger.KindOf(err) != ledger.KindUnknown {
		return err
	}
	return ledger.Wrap(ledger.KindConnectionUnavailable, "readAccount", err)
}
