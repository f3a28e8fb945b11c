package counter

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

var testProgram = ledger.MustPublicKey("J59JrEwy2LXNdME3hurENgiNDJosRM1YHLUECc1JTijh")

func testSigner(t *testing.T) ledger.Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	s, err := ledger.NewKeypairSigner(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// fakeLedger executes counter instructions against an in-memory account map.
type fakeLedger struct {
	mu        sync.Mutex
	accounts  map[ledger.PublicKey][]byte
	bump      uint8
	submitted [][]ledger.Instruction
	nextSig   byte

	confirmedAt []ledger.Commitment

	submitErr  error
	confirmErr error

	reads atomic.Int32
}

func newFakeLedger(bump uint8) *fakeLedger {
	return &fakeLedger{accounts: make(map[ledger.PublicKey][]byte), bump: bump}
}

func (f *fakeLedger) put(addr ledger.PublicKey, data []byte) {
	f.mu.Lock()
	f.accounts[addr] = append([]byte(nil), data...)
	f.mu.Unlock()
}

func (f *fakeLedger) ReadAccount(_ context.Context, addr ledger.PublicKey, _ ledger.Commitment) (ledger.RawAccount, error) {
	f.reads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.accounts[addr]
	if !ok {
		return ledger.RawAccount{}, nil
	}
	return ledger.RawAccount{Present: true, Data: append([]byte(nil), b...), Owner: testProgram}, nil
}

func (f *fakeLedger) SubmitTransaction(_ context.Context, ixs []ledger.Instruction, _ ledger.Signer) (ledger.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, ixs)
	if f.submitErr != nil {
		return ledger.Signature{}, f.submitErr
	}
	if f.confirmErr == nil {
		for _, ix := range ixs {
			if err := f.execLocked(ix); err != nil {
				return ledger.Signature{}, ledger.Wrap(ledger.KindTransactionFailed, "sendTransaction", err)
			}
		}
	}
	f.nextSig++
	var sig ledger.Signature
	sig[0] = f.nextSig
	return sig, nil
}

func (f *fakeLedger) ConfirmTransaction(_ context.Context, _ ledger.Signature, cm ledger.Commitment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmedAt = append(f.confirmedAt, cm)
	return f.confirmErr
}

func (f *fakeLedger) execLocked(ix ledger.Instruction) error {
	if ix.ProgramID != testProgram || len(ix.Data) < 8 || len(ix.Accounts) == 0 {
		return errors.New("invalid instruction")
	}
	addr := ix.Accounts[0].PublicKey
	var tag account.Discriminator
	copy(tag[:], ix.Data[:8])
	switch tag {
	case InitializeDiscriminator:
		if _, ok := f.accounts[addr]; ok {
			return errors.New("account already in use")
		}
		f.accounts[addr] = account.Encode(account.CounterDiscriminator, account.CounterState{Bump: f.bump})
	case IncrementDiscriminator:
		b, ok := f.accounts[addr]
		if !ok {
			return errors.New("account not initialized")
		}
		if len(ix.Data) != 16 {
			return errors.New("bad increment args")
		}
		dec := account.Decode(ledger.RawAccount{Present: true, Data: b})
		dec.State.Count += binary.LittleEndian.Uint64(ix.Data[8:16])
		f.accounts[addr] = account.Encode(account.CounterDiscriminator, dec.State)
	default:
		return errors.New("unknown instruction")
	}
	return nil
}
