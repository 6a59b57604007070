package core

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/txscript"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/pegbridge/pegbridge/common"
)

// derivedKeyCache caches (xpub, checkpoint index) -> compressed child pubkey.
// Child derivation is pure, so the cache never affects determinism.
var derivedKeyCache *lru.Cache

func init() {
	derivedKeyCache, _ = lru.New(4096)
}

// Signatory is one weighted signer of a checkpoint.
type Signatory struct {
	Pubkey      common.Bytes // 33-byte compressed secp256k1 public key
	VotingPower uint64
}

func (s Signatory) String() string {
	return fmt.Sprintf("Signatory{pubkey: %v, votingPower: %v}", s.Pubkey, s.VotingPower)
}

// SignatorySet is the weighted set of signers authorized to co-sign one
// checkpoint. It is fixed at checkpoint creation and never changes.
type SignatorySet struct {
	Index       uint64 // checkpoint index the set was derived for
	Signatories []Signatory
}

// SignatorySetFromValidatorCtx deterministically builds the signatory set
// valid for the given checkpoint index. Each validator's registered xpub is
// derived at the checkpoint index, so every checkpoint gets a fresh set of
// child keys. Validators without a registered key are excluded.
func SignatorySetFromValidatorCtx(index uint64, vctx ValidatorCtx) (*SignatorySet, error) {
	ss := &SignatorySet{Index: index}

	for _, v := range vctx.Validators().Validators() {
		xpub, ok := vctx.SignerKey(v.Address())
		if !ok {
			continue
		}
		pubkey, err := deriveSignerPubkey(xpub, index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive signer key for validator %v", v.Address())
		}
		ss.Signatories = append(ss.Signatories, Signatory{
			Pubkey:      pubkey,
			VotingPower: v.VotingPower(),
		})
	}

	// Highest power first; key bytes break ties to keep the order deterministic.
	sort.SliceStable(ss.Signatories, func(i, j int) bool {
		a, b := ss.Signatories[i], ss.Signatories[j]
		if a.VotingPower != b.VotingPower {
			return a.VotingPower > b.VotingPower
		}
		return bytes.Compare(a.Pubkey, b.Pubkey) < 0
	})

	return ss, nil
}

func deriveSignerPubkey(xpub string, index uint64) (common.Bytes, error) {
	cacheKey := fmt.Sprintf("%s/%d", xpub, index)
	if cached, ok := derivedKeyCache.Get(cacheKey); ok {
		return cached.(common.Bytes), nil
	}

	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, err
	}
	if key.IsPrivate() {
		return nil, errors.New("registered signer key must be a public extended key")
	}
	child, err := key.Derive(uint32(index % uint64(hdkeychain.HardenedKeyStart)))
	if err != nil {
		return nil, err
	}
	ecPubkey, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}

	pubkey := common.Bytes(ecPubkey.SerializeCompressed())
	derivedKeyCache.Add(cacheKey, pubkey)
	return pubkey, nil
}

// Len returns the number of eligible signers. Zero signals the bridge is not
// yet bootstrapped.
func (ss *SignatorySet) Len() int {
	return len(ss.Signatories)
}

// TotalVotingPower returns the total voting power of the set.
func (ss *SignatorySet) TotalVotingPower() uint64 {
	total := uint64(0)
	for _, s := range ss.Signatories {
		total += s.VotingPower
	}
	return total
}

// VotingPowerOf returns the voting power of the given pubkey and whether the
// pubkey is a member of the set.
func (ss *SignatorySet) VotingPowerOf(pubkey common.Bytes) (uint64, bool) {
	for _, s := range ss.Signatories {
		if bytes.Equal(s.Pubkey, pubkey) {
			return s.VotingPower, true
		}
	}
	return 0, false
}

// QuorumVotingPower returns the minimum signing power required to complete a
// checkpoint: the smallest w with w*100 >= total*InitialQuorumPercent.
func (ss *SignatorySet) QuorumVotingPower() uint64 {
	total := new(big.Int).SetUint64(ss.TotalVotingPower())
	num := new(big.Int).Mul(total, big.NewInt(InitialQuorumPercent))
	num.Add(num, big.NewInt(99))
	return num.Div(num, big.NewInt(100)).Uint64()
}

// Copy creates a copy of this signatory set.
func (ss *SignatorySet) Copy() *SignatorySet {
	ret := &SignatorySet{Index: ss.Index}
	for _, s := range ss.Signatories {
		ret.Signatories = append(ret.Signatories, Signatory{
			Pubkey:      common.CopyBytes(s.Pubkey),
			VotingPower: s.VotingPower,
		})
	}
	return ret
}

func (ss *SignatorySet) String() string {
	return fmt.Sprintf("SignatorySet{index: %v, signatories: %v}", ss.Index, ss.Signatories)
}

// RedeemScript builds the weighted multisig locking script of the set. Each
// signatory's branch adds its voting power to the accumulator when its
// signature is present; the script succeeds once the accumulated power reaches
// the quorum threshold.
func (ss *SignatorySet) RedeemScript() (common.Bytes, error) {
	if ss.Len() == 0 {
		return nil, errors.New("cannot build redeem script for empty signatory set")
	}

	builder := txscript.NewScriptBuilder()
	for i, s := range ss.Signatories {
		if i == 0 {
			builder.AddData(s.Pubkey)
			builder.AddOp(txscript.OP_CHECKSIG)
			builder.AddOp(txscript.OP_IF)
			builder.AddInt64(int64(s.VotingPower))
			builder.AddOp(txscript.OP_ELSE)
			builder.AddInt64(0)
			builder.AddOp(txscript.OP_ENDIF)
			continue
		}
		builder.AddOp(txscript.OP_SWAP)
		builder.AddData(s.Pubkey)
		builder.AddOp(txscript.OP_CHECKSIG)
		builder.AddOp(txscript.OP_IF)
		builder.AddInt64(int64(s.VotingPower))
		builder.AddOp(txscript.OP_ADD)
		builder.AddOp(txscript.OP_ENDIF)
	}
	builder.AddInt64(int64(ss.QuorumVotingPower()))
	builder.AddOp(txscript.OP_GREATERTHANOREQUAL)

	script, err := builder.Script()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build redeem script")
	}
	return script, nil
}
