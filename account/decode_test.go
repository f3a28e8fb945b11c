package account

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/unkn0wn-root/ledgercache/ledger"
)

func present(b []byte) ledger.RawAccount { return ledger.RawAccount{Present: true, Data: b} }

func record(disc Discriminator, count uint64, bump byte) []byte {
	b := make([]byte, RecordLength)
	copy(b, disc[:])
	binary.LittleEndian.PutUint64(b[8:16], count)
	b[16] = bump
	return b
}

func TestDecodeAbsentIsUninitialized(t *testing.T) {
	d := Decode(ledger.RawAccount{})
	if d.Tag != TagUninitialized || d.Initialized() {
		t.Fatalf("got %+v", d)
	}
	if d.Cause != nil {
		t.Fatalf("uninitialized should carry no cause, got %v", d.Cause)
	}

	// zero-length but present data is a different outcome
	z := Decode(present(nil))
	if z.Tag != TagDefaultFilled || !z.Initialized() {
		t.Fatalf("present empty: got %+v", z)
	}
}

func TestDecodeStructuredAndFallbackAgree(t *testing.T) {
	other := Sighash("account", "Farm")
	counts := []uint64{0, 1, 5, 255, 256, 1 << 32, math.MaxUint64 - 1, math.MaxUint64}
	for _, c := range counts {
		for _, bump := range []byte{0, 3, 254, 255} {
			got := Decode(present(record(CounterDiscriminator, c, bump)))
			if got.Tag != TagStructured || got.State != (CounterState{Count: c, Bump: bump}) {
				t.Fatalf("structured count=%d bump=%d: got %+v", c, bump, got)
			}
			if got.Cause != nil {
				t.Fatalf("structured path should not record a cause: %v", got.Cause)
			}

			fb := Decode(present(record(other, c, bump)))
			if fb.Tag != TagFallback || fb.State != (CounterState{Count: c, Bump: bump}) {
				t.Fatalf("fallback count=%d bump=%d: got %+v", c, bump, fb)
			}
			if !errors.Is(fb.Cause, ledger.ErrDecodeSchemaMismatch) {
				t.Fatalf("fallback cause = %v", fb.Cause)
			}
		}
	}
}

func TestDecodeExactSeventeenBytes(t *testing.T) {
	b := []byte{0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 3}
	got := Decode(present(b))
	if got.State != (CounterState{Count: 5, Bump: 3}) {
		t.Fatalf("got %+v", got)
	}
	// zero discriminator does not match the counter tag
	if got.Tag != TagFallback {
		t.Fatalf("tag = %s", got.Tag)
	}
}

func TestDecodeShortBuffersDefaultFill(t *testing.T) {
	for n := 0; n < MinLength; n++ {
		b := bytes.Repeat([]byte{0xff}, n)
		got := Decode(present(b))
		if got.Tag != TagDefaultFilled || got.State != (CounterState{}) {
			t.Fatalf("len=%d: got %+v", n, got)
		}
		if !errors.Is(got.Cause, ledger.ErrDecodeTruncated) {
			t.Fatalf("len=%d: cause = %v", n, got.Cause)
		}
	}
}

func TestDecodeSixteenBytesMissingBump(t *testing.T) {
	b := record(CounterDiscriminator, 42, 0)[:16]
	got := Decode(present(b))
	// Borsh rejects the missing bump byte; the manual path zero-fills it.
	if got.Tag != TagFallback || got.State != (CounterState{Count: 42}) {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	inputs := []ledger.RawAccount{
		{},
		present([]byte{1, 2, 3}),
		present(record(CounterDiscriminator, 7, 1)),
		present(record(Discriminator{}, 9, 2)),
	}
	for _, in := range inputs {
		a, b := Decode(in), Decode(in)
		if a.State != b.State || a.Tag != b.Tag {
			t.Fatalf("decode not idempotent: %+v vs %+v", a, b)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	got := Encode(CounterDiscriminator, CounterState{Count: 0x0102030405060708, Bump: 9})
	want := record(CounterDiscriminator, 0x0102030405060708, 9)
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = %x, want %x", got, want)
	}
}

func TestSighash(t *testing.T) {
	a := Sighash("account", "Counter")
	if a != CounterDiscriminator {
		t.Fatalf("Sighash mismatch")
	}
	if Sighash("global", "initialize") == Sighash("global", "increment") {
		t.Fatalf("instruction tags collide")
	}
}
