package counter

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

// Instruction tags of the counter program.
var (
	InitializeDiscriminator = account.Sighash("global", "initialize")
	IncrementDiscriminator  = account.Sighash("global", "increment")
)

type opKind uint8

const (
	opInitialize opKind = iota + 1
	opIncrement
)

// Op is a state-changing counter operation. Build one with Initialize or Increment.
type Op struct {
	kind   opKind
	amount uint64
}

// Initialize allocates the record at the derived address with count 0.
func Initialize() Op { return Op{kind: opInitialize} }

// Increment adds amount to the stored count. Each submission is a distinct add.
func Increment(amount uint64) Op { return Op{kind: opIncrement, amount: amount} }

func (o Op) Amount() uint64 { return o.amount }

func (o Op) String() string {
	switch o.kind {
	case opInitialize:
		return "initialize"
	case opIncrement:
		return fmt.Sprintf("increment(%d)", o.amount)
	default:
		return "invalid"
	}
}

func (o Op) name() string {
	switch o.kind {
	case opInitialize:
		return "initialize"
	case opIncrement:
		return "increment"
	default:
		return "invalid"
	}
}

type incrementArgs struct {
	Amount uint64
}

// InitializeInstruction allocates the counter account, paid for by payer.
func InitializeInstruction(programID, counter, payer ledger.PublicKey) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			{PublicKey: counter, IsWritable: true},
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ledger.SystemProgramID},
		},
		Data: append([]byte(nil), InitializeDiscriminator[:]...),
	}
}

// IncrementInstruction data is the tag followed by amount as u64 little-endian.
func IncrementInstruction(programID, counter ledger.PublicKey, amount uint64) ledger.Instruction {
	var buf bytes.Buffer
	buf.Grow(len(IncrementDiscriminator) + 8)
	buf.Write(IncrementDiscriminator[:])
	_ = bin.NewBorshEncoder(&buf).Encode(incrementArgs{Amount: amount})
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			{PublicKey: counter, IsWritable: true},
		},
		Data: buf.Bytes(),
	}
}

func (o Op) instruction(programID, counter, payer ledger.PublicKey) (ledger.Instruction, error) {
	switch o.kind {
	case opInitialize:
		return InitializeInstruction(programID, counter, payer), nil
	case opIncrement:
		return IncrementInstruction(programID, counter, o.amount), nil
	default:
		return ledger.Instruction{}, fmt.Errorf("counter: invalid operation")
	}
}
