// Package account decodes the counter record stored at a derived address.
//
// Layout (little-endian):
//
//	[0:8)   discriminator, sha256("account:Counter")[:8]
//	[8:16)  count u64
//	[16]    bump u8
//
// Decoding runs an ordered pipeline and always yields a tagged result:
// absent data is Uninitialized, fewer than 16 bytes is DefaultFilled,
// a matching discriminator parsed by the Borsh decoder is Structured, and
// everything else is read byte-by-byte as Fallback.
package account

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/unkn0wn-root/ledgercache/ledger"
)

const (
	DiscriminatorLength = 8
	// MinLength is the size below which the record is zero-filled.
	MinLength = 16
	// RecordLength is discriminator + count + bump.
	RecordLength = 17
)

// Discriminator is the 8-byte type tag prefixing serialized records.
type Discriminator [DiscriminatorLength]byte

// Sighash returns sha256("<namespace>:<name>")[:8], the tag scheme used for
// both account types ("account") and instructions ("global").
func Sighash(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// CounterDiscriminator tags counter records.
var CounterDiscriminator = Sighash("account", "Counter")

// CounterState is the decoded record.
type CounterState struct {
	Count uint64
	Bump  uint8
}

// Tag names the pipeline stage that produced a Decoded result.
type Tag uint8

const (
	TagUninitialized Tag = iota
	TagStructured
	TagFallback
	TagDefaultFilled
)

func (t Tag) String() string {
	switch t {
	case TagUninitialized:
		return "uninitialized"
	case TagStructured:
		return "structured"
	case TagFallback:
		return "fallback"
	case TagDefaultFilled:
		return "default_filled"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Decoded is the outcome of Decode. State is meaningful unless Tag is
// TagUninitialized. Cause records why a degraded path was taken; it is for
// diagnostics only and never means the decode failed.
type Decoded struct {
	State CounterState
	Tag   Tag
	Cause error
}

// Initialized reports whether the account holds a record.
func (d Decoded) Initialized() bool { return d.Tag != TagUninitialized }

// Degraded reports a schema mismatch or truncation that was recovered locally.
func (d Decoded) Degraded() bool { return d.Tag == TagFallback || d.Tag == TagDefaultFilled }

// strategy is one stage of the decode pipeline.
type strategy interface {
	tag() Tag
	decode(data []byte) (CounterState, error)
}

// Decoder is stateless and safe for concurrent use.
type Decoder struct {
	stages []strategy
}

// NewDecoder returns a decoder expecting the given discriminator.
func NewDecoder(disc Discriminator) *Decoder {
	return &Decoder{stages: []strategy{structured{disc: disc}, manual{}}}
}

var defaultDecoder = NewDecoder(CounterDiscriminator)

// Decode decodes raw with the counter discriminator.
func Decode(raw ledger.RawAccount) Decoded { return defaultDecoder.Decode(raw) }

func (d *Decoder) Decode(raw ledger.RawAccount) Decoded {
	if !raw.Present {
		return Decoded{Tag: TagUninitialized}
	}
	if raw.Len() < MinLength {
		return Decoded{
			Tag:   TagDefaultFilled,
			Cause: ledger.Wrap(ledger.KindDecodeTruncated, "account.Decode", fmt.Errorf("%d bytes, need %d", raw.Len(), MinLength)),
		}
	}

	var cause error
	for _, s := range d.stages {
		st, err := s.decode(raw.Data)
		if err != nil {
			cause = ledger.Wrap(ledger.KindDecodeSchemaMismatch, "account.Decode", err)
			continue
		}
		return Decoded{State: st, Tag: s.tag(), Cause: cause}
	}
	// unreachable while manual is the last stage
	return Decoded{Tag: TagDefaultFilled, Cause: cause}
}

type structured struct {
	disc Discriminator
}

type counterLayout struct {
	Count uint64
	Bump  uint8
}

func (structured) tag() Tag { return TagStructured }

func (s structured) decode(data []byte) (CounterState, error) {
	if !bytes.Equal(data[:DiscriminatorLength], s.disc[:]) {
		return CounterState{}, fmt.Errorf("discriminator %x, want %x", data[:DiscriminatorLength], s.disc[:])
	}
	var l counterLayout
	if err := bin.NewBorshDecoder(data[DiscriminatorLength:]).Decode(&l); err != nil {
		return CounterState{}, fmt.Errorf("borsh: %w", err)
	}
	return CounterState{Count: l.Count, Bump: l.Bump}, nil
}

// manual reads count and bump directly, treating missing bytes as zero.
type manual struct{}

func (manual) tag() Tag { return TagFallback }

func (manual) decode(data []byte) (CounterState, error) {
	var st CounterState
	for i := 0; i < 8; i++ {
		idx := DiscriminatorLength + i
		if idx < len(data) {
			st.Count |= uint64(data[idx]) << (8 * i)
		}
	}
	if len(data) > 16 {
		st.Bump = data[16]
	}
	return st, nil
}

// Encode produces the byte-exact record layout for st.
func Encode(disc Discriminator, st CounterState) []byte {
	var buf bytes.Buffer
	buf.Grow(RecordLength)
	buf.Write(disc[:])
	// bytes.Buffer writes never fail
	_ = bin.NewBorshEncoder(&buf).Encode(counterLayout{Count: st.Count, Bump: st.Bump})
	return buf.Bytes()
}
