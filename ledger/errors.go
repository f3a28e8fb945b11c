package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies failures and degraded outcomes across the client.
// Uninitialized and the two decode kinds are never returned as errors to callers;
// they only show up in diagnostics.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUninitialized
	KindDecodeSchemaMismatch
	KindDecodeTruncated
	KindConnectionUnavailable
	KindTransactionFailed
	KindDerivationExhausted
)

func (k Kind) String() string {
	switch k {
	case KindUninitialized:
		return "uninitialized"
	case KindDecodeSchemaMismatch:
		return "decode_schema_mismatch"
	case KindDecodeTruncated:
		return "decode_truncated"
	case KindConnectionUnavailable:
		return "connection_unavailable"
	case KindTransactionFailed:
		return "transaction_failed"
	case KindDerivationExhausted:
		return "derivation_exhausted"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus the operation and underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("ledger: %s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("ledger: %s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("ledger: %s: %s", e.Op, e.Kind)
	default:
		return "ledger: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && t.Err == nil
}

var (
	ErrUninitialized         = &Error{Kind: KindUninitialized}
	ErrDecodeSchemaMismatch  = &Error{Kind: KindDecodeSchemaMismatch}
	ErrDecodeTruncated       = &Error{Kind: KindDecodeTruncated}
	ErrConnectionUnavailable = &Error{Kind: KindConnectionUnavailable}
	ErrTransactionFailed     = &Error{Kind: KindTransactionFailed}
	ErrDerivationExhausted   = &Error{Kind: KindDerivationExhausted}
)

// Wrap returns err annotated with kind and op. A nil err yields a bare kind error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
