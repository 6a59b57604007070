package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pegbridge/pegbridge/common"
)

// testValidatorCtx is a self-contained validator context for core tests.
type testValidatorCtx struct {
	valset *ValidatorSet
	keys   map[common.Address]string
}

func (ctx *testValidatorCtx) Validators() *ValidatorSet {
	return ctx.valset
}

func (ctx *testValidatorCtx) SignerKey(addr common.Address) (string, bool) {
	xpub, ok := ctx.keys[addr]
	return xpub, ok
}

func newTestValidatorCtx(powers map[string]uint64, signers map[string]*TestSigner) *testValidatorCtx {
	ctx := &testValidatorCtx{
		valset: NewValidatorSet(),
		keys:   make(map[common.Address]string),
	}
	for addrStr, power := range powers {
		ctx.valset.AddValidator(NewValidator(addrStr, power))
	}
	for addrStr, signer := range signers {
		ctx.keys[common.HexToAddress(addrStr)] = signer.Xpub()
	}
	return ctx
}

func TestSignatorySetFromValidatorCtx(t *testing.T) {
	assert := assert.New(t)

	signer1 := NewTestSigner(1)
	signer2 := NewTestSigner(2)
	signer3 := NewTestSigner(3)

	ctx := newTestValidatorCtx(
		map[string]uint64{"0x111": 100, "0x222": 100, "0x333": 100},
		map[string]*TestSigner{"0x111": signer1, "0x222": signer2, "0x333": signer3},
	)

	ss, err := SignatorySetFromValidatorCtx(0, ctx)
	assert.Nil(err)
	assert.Equal(3, ss.Len())
	assert.Equal(uint64(300), ss.TotalVotingPower())
	assert.Equal(uint64(0), ss.Index)

	// Each signatory key is the validator's child key at the checkpoint index.
	for _, signer := range []*TestSigner{signer1, signer2, signer3} {
		power, ok := ss.VotingPowerOf(signer.PubkeyAt(0))
		assert.True(ok)
		assert.Equal(uint64(100), power)
	}

	// Derivation is deterministic.
	ss2, err := SignatorySetFromValidatorCtx(0, ctx)
	assert.Nil(err)
	assert.Equal(ss, ss2)

	// A different checkpoint index yields different child keys.
	ss3, err := SignatorySetFromValidatorCtx(1, ctx)
	assert.Nil(err)
	assert.Equal(3, ss3.Len())
	_, ok := ss3.VotingPowerOf(signer1.PubkeyAt(0))
	assert.False(ok)
	_, ok = ss3.VotingPowerOf(signer1.PubkeyAt(1))
	assert.True(ok)
}

func TestSignatorySetExcludesUnregisteredValidators(t *testing.T) {
	assert := assert.New(t)

	signer1 := NewTestSigner(1)
	ctx := newTestValidatorCtx(
		map[string]uint64{"0x111": 100, "0x222": 50},
		map[string]*TestSigner{"0x111": signer1},
	)

	ss, err := SignatorySetFromValidatorCtx(0, ctx)
	assert.Nil(err)
	assert.Equal(1, ss.Len())
	assert.Equal(uint64(100), ss.TotalVotingPower())

	// No registered keys at all signals an un-bootstrapped bridge.
	emptyCtx := newTestValidatorCtx(map[string]uint64{"0x111": 100}, nil)
	ss, err = SignatorySetFromValidatorCtx(0, emptyCtx)
	assert.Nil(err)
	assert.Equal(0, ss.Len())
}

func TestSignatorySetOrdering(t *testing.T) {
	assert := assert.New(t)

	ctx := newTestValidatorCtx(
		map[string]uint64{"0x111": 10, "0x222": 200, "0x333": 50},
		map[string]*TestSigner{
			"0x111": NewTestSigner(1),
			"0x222": NewTestSigner(2),
			"0x333": NewTestSigner(3),
		},
	)

	ss, err := SignatorySetFromValidatorCtx(0, ctx)
	assert.Nil(err)
	assert.Equal(3, ss.Len())

	// Ordered by voting power, highest first.
	assert.Equal(uint64(200), ss.Signatories[0].VotingPower)
	assert.Equal(uint64(50), ss.Signatories[1].VotingPower)
	assert.Equal(uint64(10), ss.Signatories[2].VotingPower)
}

func TestQuorumVotingPower(t *testing.T) {
	assert := assert.New(t)

	ss := &SignatorySet{
		Signatories: []Signatory{
			{Pubkey: NewTestSigner(1).PubkeyAt(0), VotingPower: 100},
			{Pubkey: NewTestSigner(2).PubkeyAt(0), VotingPower: 100},
			{Pubkey: NewTestSigner(3).PubkeyAt(0), VotingPower: 100},
		},
	}

	// 70% of 300, rounded up.
	assert.Equal(uint64(210), ss.QuorumVotingPower())
}

func TestRedeemScript(t *testing.T) {
	assert := assert.New(t)

	ctx := newTestValidatorCtx(
		map[string]uint64{"0x111": 100, "0x222": 100},
		map[string]*TestSigner{"0x111": NewTestSigner(1), "0x222": NewTestSigner(2)},
	)
	ss, err := SignatorySetFromValidatorCtx(0, ctx)
	assert.Nil(err)

	script, err := ss.RedeemScript()
	assert.Nil(err)
	assert.True(len(script) > 0)

	// Deterministic.
	script2, err := ss.RedeemScript()
	assert.Nil(err)
	assert.Equal(script, script2)

	// Empty sets have no redeem script.
	empty := &SignatorySet{}
	_, err = empty.RedeemScript()
	assert.NotNil(err)
}

func TestSignatorySetCopy(t *testing.T) {
	assert := assert.New(t)

	ctx := newTestValidatorCtx(
		map[string]uint64{"0x111": 100},
		map[string]*TestSigner{"0x111": NewTestSigner(1)},
	)
	ss, err := SignatorySetFromValidatorCtx(7, ctx)
	assert.Nil(err)

	cp := ss.Copy()
	assert.Equal(ss, cp)

	cp.Signatories[0].VotingPower = 5
	assert.Equal(uint64(100), ss.Signatories[0].VotingPower)
}
