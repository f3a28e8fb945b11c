// Package counter submits state-changing operations to the counter program
// and invalidates the cached entry once they are confirmed.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/pda"
)

// Cache is the part of ledgercache.Cache the invoker needs.
type Cache interface {
	Address(key string) (pda.Address, error)
	Invalidate(ctx context.Context, key string) error
}

type Options struct {
	ProgramID  ledger.PublicKey
	Key        string // cache key of the counter; "" => "counter"
	Cache      Cache
	Writer     ledger.Writer
	Signer     ledger.Signer
	Commitment ledger.Commitment  // "" => confirmed
	Logger     ledgercache.Logger // nil => NopLogger
}

// Invoker is safe for concurrent use. Submissions on the same key are not
// serialized; callers that need ordering must await each Submit.
type Invoker struct {
	programID  ledger.PublicKey
	key        string
	cache      Cache
	writer     ledger.Writer
	signer     ledger.Signer
	commitment ledger.Commitment
	log        ledgercache.Logger
}

func NewInvoker(opts Options) (*Invoker, error) {
	switch {
	case opts.ProgramID.IsZero():
		return nil, fmt.Errorf("counter: program id is required")
	case opts.Cache == nil:
		return nil, fmt.Errorf("counter: cache is required")
	case opts.Writer == nil:
		return nil, fmt.Errorf("counter: writer is required")
	case opts.Signer == nil:
		return nil, fmt.Errorf("counter: signer is required")
	case opts.Commitment != "" && !opts.Commitment.Valid():
		return nil, fmt.Errorf("counter: unknown commitment %q", opts.Commitment)
	}
	inv := &Invoker{
		programID:  opts.ProgramID,
		key:        opts.Key,
		cache:      opts.Cache,
		writer:     opts.Writer,
		signer:     opts.Signer,
		commitment: opts.Commitment,
		log:        opts.Logger,
	}
	if inv.key == "" {
		inv.key = "counter"
	}
	if inv.commitment == "" {
		inv.commitment = ledger.CommitmentConfirmed
	}
	if inv.log == nil {
		inv.log = ledgercache.NopLogger{}
	}
	return inv, nil
}

// Key is the cache key this invoker invalidates.
func (inv *Invoker) Key() string { return inv.key }

// Submit sends op, waits for the configured commitment and invalidates the
// cache key. Failures are KindTransactionFailed and leave the cache untouched;
// derivation failures keep their own kind. There is no retry.
func (inv *Invoker) Submit(ctx context.Context, op Op) (ledger.Signature, error) {
	var zero ledger.Signature
	opName := "counter." + op.name()

	addr, err := inv.cache.Address(inv.key)
	if err != nil {
		return zero, err
	}
	ix, err := op.instruction(inv.programID, addr.Key, inv.signer.PublicKey())
	if err != nil {
		return zero, ledger.Wrap(ledger.KindTransactionFailed, opName, err)
	}

	fields := ledgercache.Fields{"op": op.String(), "key": inv.key, "address": addr.Key.String()}
	start := time.Now()

	sig, err := inv.writer.SubmitTransaction(ctx, []ledger.Instruction{ix}, inv.signer)
	if err != nil {
		fields["err"] = err
		inv.log.Warn("transaction submit failed", fields)
		return zero, ledger.Wrap(ledger.KindTransactionFailed, opName, err)
	}
	fields["signature"] = sig.String()

	if err := inv.writer.ConfirmTransaction(ctx, sig, inv.commitment); err != nil {
		fields["err"] = err
		inv.log.Warn("transaction confirmation failed", fields)
		return sig, ledger.Wrap(ledger.KindTransactionFailed, opName, err)
	}
	fields["elapsed"] = time.Since(start)
	inv.log.Info("transaction confirmed", fields)

	// the write landed; invalidation errors are only logged
	if err := inv.cache.Invalidate(ctx, inv.key); err != nil {
		inv.log.Warn("post-write invalidate failed", ledgercache.Fields{"key": inv.key, "err": err})
	}
	return sig, nil
}
