package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSigner(t *testing.T, seed byte) *KeypairSigner {
	t.Helper()
	s, err := NewKeypairSigner(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize)))
	if err != nil {
		t.Fatalf("NewKeypairSigner: %v", err)
	}
	return s
}

func TestCompileMessageOrdersAccounts(t *testing.T) {
	payer := testSigner(t, 1).PublicKey()
	program := PublicKey{9}
	writable := PublicKey{3}
	readonly := PublicKey{4}

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{PublicKey: readonly},
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: writable, IsWritable: true},
		},
		Data: []byte{0xaa},
	}
	msg, err := CompileMessage([]Instruction{ix}, payer, [32]byte{7})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}
	want := []PublicKey{payer, writable, readonly, program}
	if len(msg.AccountKeys) != len(want) {
		t.Fatalf("keys = %v", msg.AccountKeys)
	}
	for i := range want {
		if msg.AccountKeys[i] != want[i] {
			t.Fatalf("key %d = %s, want %s", i, msg.AccountKeys[i], want[i])
		}
	}
	h := msg.Header
	if h.NumRequiredSignatures != 1 || h.NumReadonlySignedAccounts != 0 || h.NumReadonlyUnsignedAccounts != 2 {
		t.Fatalf("header = %+v", h)
	}
	ci := msg.Instructions[0]
	if ci.ProgramIDIndex != 3 || len(ci.Accounts) != 3 || ci.Accounts[0] != 2 || ci.Accounts[1] != 0 || ci.Accounts[2] != 1 {
		t.Fatalf("compiled instruction = %+v", ci)
	}
}

func TestCompileMessageRequiresInstructions(t *testing.T) {
	if _, err := CompileMessage(nil, PublicKey{1}, [32]byte{}); !errors.Is(err, ErrNoInstructions) {
		t.Fatalf("err = %v, want ErrNoInstructions", err)
	}
}

func TestNewTransactionSignsMessage(t *testing.T) {
	signer := testSigner(t, 2)
	ix := Instruction{ProgramID: PublicKey{5}, Accounts: []AccountMeta{{PublicKey: PublicKey{6}, IsWritable: true}}, Data: []byte{1, 2, 3}}
	tx, err := NewTransaction([]Instruction{ix}, signer, [32]byte{8})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	pub := signer.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, tx.Signatures[0][:]) {
		t.Fatalf("signature does not verify")
	}

	wire, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if wire[0] != 1 {
		t.Fatalf("signature count prefix = %d", wire[0])
	}
	if !bytes.Equal(wire[1+SignatureLength:], msg) {
		t.Fatalf("serialized transaction does not end with message")
	}
	// header(3) + n keys prefix + 3 keys + blockhash + 1 ix prefix + programIdx + 1 acct prefix + 1 acct + data prefix + 3 data
	wantLen := 3 + 1 + 3*32 + 32 + 1 + 1 + 1 + 1 + 1 + 3
	if len(msg) != wantLen {
		t.Fatalf("message len = %d, want %d", len(msg), wantLen)
	}
}

func TestNewTransactionRejectsExtraSigners(t *testing.T) {
	signer := testSigner(t, 2)
	ix := Instruction{ProgramID: PublicKey{5}, Accounts: []AccountMeta{{PublicKey: PublicKey{6}, IsSigner: true}}}
	if _, err := NewTransaction([]Instruction{ix}, signer, [32]byte{}); err == nil {
		t.Fatalf("expected error for second signer")
	}
}

func TestLoadKeypairFile(t *testing.T) {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{3}, ed25519.SeedSize))
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadKeypairFile(path)
	if err != nil {
		t.Fatalf("LoadKeypairFile: %v", err)
	}
	pub := s.PublicKey()
	if !bytes.Equal(pub[:], key.Public().(ed25519.PublicKey)) {
		t.Fatalf("public key = %s", pub)
	}
	sig, err := s.Sign([]byte("msg"))
	if err != nil || !ed25519.Verify(key.Public().(ed25519.PublicKey), []byte("msg"), sig[:]) {
		t.Fatalf("signature does not verify: %v", err)
	}

	if err := os.WriteFile(path, []byte("[1,2,3]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeypairFile(path); err == nil {
		t.Fatalf("expected error for short keypair")
	}
}
