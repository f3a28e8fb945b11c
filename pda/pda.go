// Package pda derives program addresses: deterministic, off-curve addresses
// computed from a program id and seed bytes, which no private key can sign for.
//
// The search tries bump 255 first and walks down to 0, returning the first
// candidate sha256(seeds... | bump | programID | "ProgramDerivedAddress")
// that does not decode as an ed25519 point.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/unkn0wn-root/ledgercache/ledger"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var domainSeparator = []byte("ProgramDerivedAddress")

// ErrOnCurve is returned by Create when the candidate has a private key.
var ErrOnCurve = errors.New("pda: address is on curve")

// Address is a derived address with the inputs that produced it.
type Address struct {
	Key   ledger.PublicKey
	Seeds [][]byte
	Bump  uint8
}

// isOnCurve is swapped in tests to force exhaustion.
var isOnCurve = IsOnCurve

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Find searches bumps 255..0 and returns the first off-curve address.
func Find(programID ledger.PublicKey, seeds ...[]byte) (Address, error) {
	if err := checkSeeds(seeds, 1); err != nil {
		return Address{}, err
	}
	for b := 255; b >= 0; b-- {
		key := hash(programID, seeds, []byte{byte(b)})
		if isOnCurve(key[:]) {
			continue
		}
		return Address{Key: key, Seeds: cloneSeeds(seeds), Bump: uint8(b)}, nil
	}
	return Address{}, ledger.Wrap(ledger.KindDerivationExhausted, "pda.Find",
		fmt.Errorf("no off-curve bump for program %s", programID))
}

// Create computes the address for a known bump; seeds must already include it.
func Create(programID ledger.PublicKey, seeds ...[]byte) (ledger.PublicKey, error) {
	if err := checkSeeds(seeds, 0); err != nil {
		return ledger.PublicKey{}, err
	}
	key := hash(programID, seeds, nil)
	if isOnCurve(key[:]) {
		return ledger.PublicKey{}, ErrOnCurve
	}
	return key, nil
}

func hash(programID ledger.PublicKey, seeds [][]byte, bump []byte) ledger.PublicKey {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(bump)
	h.Write(programID[:])
	h.Write(domainSeparator)
	var out ledger.PublicKey
	copy(out[:], h.Sum(nil))
	return out
}

// reserve leaves room for the bump seed appended by Find.
func checkSeeds(seeds [][]byte, reserve int) error {
	if len(seeds)+reserve > MaxSeeds {
		return fmt.Errorf("pda: too many seeds (%d)", len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return fmt.Errorf("pda: seed %d is %d bytes, max %d", i, len(s), MaxSeedLength)
		}
	}
	return nil
}

func cloneSeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}
