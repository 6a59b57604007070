package core

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/pegbridge/pegbridge/common"
)

// CheckpointStatus is the lifecycle state of a checkpoint. It only ever moves
// forward: Building -> Signing -> Complete.
type CheckpointStatus uint8

const (
	CheckpointStatusBuilding CheckpointStatus = iota
	CheckpointStatusSigning
	CheckpointStatusComplete
)

func (s CheckpointStatus) String() string {
	switch s {
	case CheckpointStatusBuilding:
		return "building"
	case CheckpointStatusSigning:
		return "signing"
	case CheckpointStatusComplete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Input references a Bitcoin outpoint the checkpoint's transaction spends.
type Input struct {
	PrevTxid     chainhash.Hash
	PrevVout     uint32
	Amount       uint64
	ScriptPubkey common.Bytes
	Sig          *ThresholdSig `rlp:"nil"`
}

// OutPoint returns the previous outpoint this input spends.
func (in *Input) OutPoint() wire.OutPoint {
	return *wire.NewOutPoint(&in.PrevTxid, in.PrevVout)
}

func (in *Input) String() string {
	return fmt.Sprintf("Input{prev: %v:%v, amount: %v}", in.PrevTxid, in.PrevVout, in.Amount)
}

// Output defines funds the checkpoint's transaction pays out.
type Output struct {
	Amount uint64 // in satoshi
	Script common.Bytes
}

func (out *Output) String() string {
	return fmt.Sprintf("Output{amount: %v, script: %v}", out.Amount, out.Script)
}

// Checkpoint is one lifecycle unit: an aggregated Bitcoin transaction
// descriptor moving custody from one signatory set to the next. The sigset is
// fixed at creation; inputs and outputs may only be appended while the
// checkpoint is building; once complete the checkpoint is never mutated again.
type Checkpoint struct {
	Status  CheckpointStatus
	Inputs  []*Input
	Outputs []*Output
	Sig     *ThresholdSig `rlp:"nil"`
	Sigset  *SignatorySet `rlp:"nil"`
}

// NewCheckpoint creates an empty checkpoint in the building state.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{Status: CheckpointStatusBuilding}
}

// AddInput appends an input. Only allowed while the checkpoint is building.
func (c *Checkpoint) AddInput(in *Input) error {
	if c.Status != CheckpointStatusBuilding {
		return errors.Errorf("cannot add input to a %v checkpoint", c.Status)
	}
	c.Inputs = append(c.Inputs, in)
	return nil
}

// AddOutput appends an output. Only allowed while the checkpoint is building.
func (c *Checkpoint) AddOutput(out *Output) error {
	if c.Status != CheckpointStatusBuilding {
		return errors.Errorf("cannot add output to a %v checkpoint", c.Status)
	}
	c.Outputs = append(c.Outputs, out)
	return nil
}

// InputAmount returns the total amount spent by the checkpoint's inputs.
func (c *Checkpoint) InputAmount() uint64 {
	total := uint64(0)
	for _, in := range c.Inputs {
		total += in.Amount
	}
	return total
}

// OutputAmount returns the total amount paid out by the checkpoint's outputs.
func (c *Checkpoint) OutputAmount() uint64 {
	total := uint64(0)
	for _, out := range c.Outputs {
		total += out.Amount
	}
	return total
}

// txDescriptor is the canonical encoding of the checkpoint's transaction
// contents, used for both the txid and the signing digest. Signatures are
// deliberately excluded so the digest is stable while signatures accumulate.
type txDescriptor struct {
	Inputs  []wire.OutPoint
	Outputs []Output
}

func (c *Checkpoint) descriptorBytes() (common.Bytes, error) {
	desc := txDescriptor{
		Inputs:  make([]wire.OutPoint, 0, len(c.Inputs)),
		Outputs: make([]Output, 0, len(c.Outputs)),
	}
	for _, in := range c.Inputs {
		desc.Inputs = append(desc.Inputs, in.OutPoint())
	}
	for _, out := range c.Outputs {
		desc.Outputs = append(desc.Outputs, *out)
	}
	return rlp.EncodeToBytes(desc)
}

// Txid returns the deterministic identifier of the checkpoint's transaction.
// It stands in for the Bitcoin txid; the wire-level transaction serialization
// lives outside this module.
func (c *Checkpoint) Txid() (chainhash.Hash, error) {
	desc, err := c.descriptorBytes()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(desc), nil
}

// SigningDigest returns the canonical message signers commit to: the
// transaction descriptor bound to the governing sigset's redeem script.
func (c *Checkpoint) SigningDigest() (common.Bytes, error) {
	if c.Sigset == nil {
		return nil, errors.New("checkpoint has no signatory set")
	}
	txid, err := c.Txid()
	if err != nil {
		return nil, err
	}
	redeemScript, err := c.Sigset.RedeemScript()
	if err != nil {
		return nil, err
	}
	enc, err := rlp.EncodeToBytes(struct {
		Txid         chainhash.Hash
		RedeemScript common.Bytes
	}{txid, redeemScript})
	if err != nil {
		return nil, err
	}
	return chainhash.DoubleHashB(enc), nil
}

func (c *Checkpoint) String() string {
	return fmt.Sprintf("Checkpoint{status: %v, inputs: %v, outputs: %v}",
		c.Status, len(c.Inputs), len(c.Outputs))
}
