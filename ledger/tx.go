package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Message and Transaction use the legacy layout: one compact-u16 prefixed
// signature list followed by the message, keys ordered writable signers,
// read-only signers, writable, read-only with the fee payer first.
type (
	Message     = solana.Message
	Transaction = solana.Transaction
)

var ErrNoInstructions = errors.New("ledger: transaction has no instructions")

func programInstructions(instructions []Instruction) []solana.Instruction {
	out := make([]solana.Instruction, 0, len(instructions))
	for _, ix := range instructions {
		metas := make(solana.AccountMetaSlice, len(ix.Accounts))
		for i := range ix.Accounts {
			am := ix.Accounts[i]
			metas[i] = &am
		}
		out = append(out, solana.NewInstruction(ix.ProgramID, metas, ix.Data))
	}
	return out
}

// CompileMessage resolves account order and indexes for instructions paid by payer.
func CompileMessage(instructions []Instruction, payer PublicKey, blockhash [32]byte) (Message, error) {
	if len(instructions) == 0 {
		return Message{}, ErrNoInstructions
	}
	tx, err := solana.NewTransaction(programInstructions(instructions), solana.Hash(blockhash), solana.TransactionPayer(payer))
	if err != nil {
		return Message{}, fmt.Errorf("ledger: compile message: %w", err)
	}
	return tx.Message, nil
}

// NewTransaction compiles and signs a single-signer transaction.
func NewTransaction(instructions []Instruction, signer Signer, blockhash [32]byte) (*Transaction, error) {
	if signer == nil {
		return nil, errors.New("ledger: signer required")
	}
	msg, err := CompileMessage(instructions, signer.PublicKey(), blockhash)
	if err != nil {
		return nil, err
	}
	if n := msg.Header.NumRequiredSignatures; n != 1 {
		return nil, fmt.Errorf("ledger: %d signers required, only the fee payer can sign", n)
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ledger: encode message: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign message: %w", err)
	}
	return &Transaction{Signatures: []Signature{sig}, Message: msg}, nil
}
