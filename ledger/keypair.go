package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// KeypairSigner signs with an in-memory ed25519 key.
type KeypairSigner struct {
	key solana.PrivateKey
	pub PublicKey
}

var _ Signer = (*KeypairSigner)(nil)

func NewKeypairSigner(key ed25519.PrivateKey) (*KeypairSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ledger: keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	pk := solana.PrivateKey(key)
	return &KeypairSigner{key: pk, pub: pk.PublicKey()}, nil
}

// LoadKeypairFile reads a keygen file: a JSON array of 64 byte values.
func LoadKeypairFile(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: load keypair %s: %w", path, err)
	}
	return NewKeypairSigner(ed25519.PrivateKey(key))
}

func (s *KeypairSigner) PublicKey() PublicKey { return s.pub }

func (s *KeypairSigner) Sign(message []byte) (Signature, error) {
	return s.key.Sign(message)
}
