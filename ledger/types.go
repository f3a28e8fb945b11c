// Package ledger holds the types shared by every component that talks to the
// ledger: account addresses, signatures, raw account reads, instructions and
// the read/write interfaces implemented by transports such as ledger/rpc.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	PublicKeyLength = 32
	SignatureLength = 64
)

// PublicKey is a 32-byte ledger address. Its text form is base58.
type PublicKey = solana.PublicKey

// Signature identifies a submitted transaction.
type Signature = solana.Signature

// SystemProgramID owns freshly allocated accounts.
var SystemProgramID = solana.SystemProgramID

var ErrInvalidKey = errors.New("ledger: invalid public key")

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pk, nil
}

// MustPublicKey is ParsePublicKey for constants and tests.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func ParseSignature(s string) (Signature, error) {
	sig, err := solana.SignatureFromBase58(s)
	if err != nil {
		return Signature{}, fmt.Errorf("ledger: invalid signature: %v", err)
	}
	return sig, nil
}

// RawAccount is the undecoded content of an address.
// Present=false means the address is unallocated; Data is then nil.
type RawAccount struct {
	Present  bool
	Data     []byte
	Owner    PublicKey
	Lamports uint64
	Slot     uint64
}

// Len is the number of data bytes held by the account.
func (r RawAccount) Len() int { return len(r.Data) }

// Commitment is the finality threshold for reads and confirmations.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Valid reports whether c is one of the known levels.
func (c Commitment) Valid() bool { return c.rank() > 0 }

// Reached reports whether an observed status level satisfies c.
func (c Commitment) Reached(observed Commitment) bool {
	return c.Valid() && observed.rank() >= c.rank()
}

func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(s)
	if !c.Valid() {
		return "", fmt.Errorf("ledger: unknown commitment %q", s)
	}
	return c, nil
}

// AccountMeta describes one account referenced by an instruction.
type AccountMeta = solana.AccountMeta

// Instruction is a single program invocation inside a transaction.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Reader fetches account bytes.
type Reader interface {
	// ReadAccount returns RawAccount{Present:false} for unallocated addresses.
	ReadAccount(ctx context.Context, address PublicKey, commitment Commitment) (RawAccount, error)
}

// Writer submits transactions and waits for them to land.
type Writer interface {
	SubmitTransaction(ctx context.Context, instructions []Instruction, signer Signer) (Signature, error)
	ConfirmTransaction(ctx context.Context, sig Signature, commitment Commitment) error
}

// Signer pays for and signs transactions.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) (Signature, error)
}
