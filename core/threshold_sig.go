package core

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"

	"github.com/pegbridge/pegbridge/common"
)

// InitialQuorumPercent is the fraction of total signatory voting power
// required to complete a checkpoint's signature.
const InitialQuorumPercent = 70

// ErrSignatureRejected is returned when a submitted signature is invalid,
// from a non-member key, or a duplicate. The submission never mutates state.
var ErrSignatureRejected = errors.New("signature rejected")

// PartialSig is one member's recorded contribution.
type PartialSig struct {
	Pubkey    common.Bytes
	Signature common.Bytes
}

// ThresholdSig accumulates partial signatures from members of a signatory set
// and reports completion once a quorum of signing power is reached.
type ThresholdSig struct {
	Message     common.Bytes // 32-byte signing digest; empty until armed
	Signatories []Signatory
	Sigs        []PartialSig
	SignedPower uint64
	TotalPower  uint64
}

// NewThresholdSig sets up a threshold signature governed by the given
// signatory set. The signing message is attached separately once the
// transaction contents are frozen.
func NewThresholdSig(ss *SignatorySet) *ThresholdSig {
	ts := &ThresholdSig{
		TotalPower: ss.TotalVotingPower(),
	}
	for _, s := range ss.Signatories {
		ts.Signatories = append(ts.Signatories, Signatory{
			Pubkey:      common.CopyBytes(s.Pubkey),
			VotingPower: s.VotingPower,
		})
	}
	return ts
}

// SetMessage attaches the signing digest. Must be called before any
// signature can be accepted.
func (ts *ThresholdSig) SetMessage(msg common.Bytes) {
	ts.Message = common.CopyBytes(msg)
}

// Sign verifies that pubkey belongs to the governing signatory set, that it
// has not already signed, and that sig is a valid DER-encoded ECDSA signature
// of the signing message under pubkey. On success the member's voting power is
// recorded. Every failure is surfaced as ErrSignatureRejected.
func (ts *ThresholdSig) Sign(pubkey common.Bytes, sig common.Bytes) error {
	power, ok := ts.votingPowerOf(pubkey)
	if !ok {
		return errors.Wrap(ErrSignatureRejected, "pubkey is not part of the signatory set")
	}
	if ts.HasSigned(pubkey) {
		return errors.Wrap(ErrSignatureRejected, "pubkey has already signed")
	}
	if len(ts.Message) == 0 {
		return errors.Wrap(ErrSignatureRejected, "no signing message attached")
	}

	parsedPubkey, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return errors.Wrapf(ErrSignatureRejected, "malformed pubkey: %v", err)
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return errors.Wrapf(ErrSignatureRejected, "malformed signature: %v", err)
	}
	if !parsedSig.Verify(ts.Message, parsedPubkey) {
		return errors.Wrap(ErrSignatureRejected, "signature verification failed")
	}

	ts.Sigs = append(ts.Sigs, PartialSig{
		Pubkey:    common.CopyBytes(pubkey),
		Signature: common.CopyBytes(sig),
	})
	ts.SignedPower += power
	return nil
}

// Done reports whether the accumulated signing power has reached the quorum
// fraction of the total signatory power.
func (ts *ThresholdSig) Done() bool {
	signed := new(big.Int).SetUint64(ts.SignedPower)
	total := new(big.Int).SetUint64(ts.TotalPower)

	// signed*100 >= total*InitialQuorumPercent
	lhs := new(big.Int).Mul(signed, big.NewInt(100))
	rhs := new(big.Int).Mul(total, big.NewInt(InitialQuorumPercent))
	return lhs.Cmp(rhs) >= 0
}

// HasSigned reports whether the given pubkey has already contributed.
func (ts *ThresholdSig) HasSigned(pubkey common.Bytes) bool {
	for _, ps := range ts.Sigs {
		if bytes.Equal(ps.Pubkey, pubkey) {
			return true
		}
	}
	return false
}

func (ts *ThresholdSig) votingPowerOf(pubkey common.Bytes) (uint64, bool) {
	for _, s := range ts.Signatories {
		if bytes.Equal(s.Pubkey, pubkey) {
			return s.VotingPower, true
		}
	}
	return 0, false
}

func (ts *ThresholdSig) String() string {
	return fmt.Sprintf("ThresholdSig{signed: %v/%v, sigs: %v}", ts.SignedPower, ts.TotalPower, len(ts.Sigs))
}
