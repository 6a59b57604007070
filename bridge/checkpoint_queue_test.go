package bridge

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/core"
	"github.com/pegbridge/pegbridge/store"
)

func newTestBridge(t *testing.T, capacity uint64,
	signers map[string]*core.TestSigner, powers map[string]uint64) (*CheckpointQueue, *ValidatorContext, store.Store) {
	db := store.NewMemKVStore()
	registry := NewSignerRegistry(db)
	valset := core.NewValidatorSet()
	for addrStr, power := range powers {
		valset.AddValidator(core.NewValidator(addrStr, power))
	}
	for addrStr, signer := range signers {
		err := registry.SetSignerKey(common.HexToAddress(addrStr), signer.Xpub())
		assert.Nil(t, err)
	}
	q, err := NewCheckpointQueue(db, capacity)
	assert.Nil(t, err)
	return q, NewValidatorContext(valset, registry), db
}

func threeSigners() (map[string]*core.TestSigner, map[string]uint64) {
	signers := map[string]*core.TestSigner{
		"0x111": core.NewTestSigner(1),
		"0x222": core.NewTestSigner(2),
		"0x333": core.NewTestSigner(3),
	}
	powers := map[string]uint64{"0x111": 100, "0x222": 100, "0x333": 100}
	return signers, powers
}

func TestQueueBootstrap(t *testing.T) {
	assert := assert.New(t)

	// With no registered signer keys the queue stays empty.
	_, powers := threeSigners()
	q, vctx, _ := newTestBridge(t, 10, nil, powers)
	assert.Nil(q.MaybeAdvance(0, vctx))
	assert.Equal(0, q.Len())
	_, err := q.Building()
	assert.True(errors.Is(err, ErrIndexOutOfBounds))

	// Once keys exist the first building checkpoint appears at index 0.
	signers, powers := threeSigners()
	q, vctx, _ = newTestBridge(t, 10, signers, powers)
	assert.Nil(q.MaybeAdvance(0, vctx))
	assert.Equal(1, q.Len())
	assert.Equal(uint64(0), q.Index())

	building, err := q.Building()
	assert.Nil(err)
	assert.Equal(uint64(0), building.Index)
	assert.Equal(core.CheckpointStatusBuilding, building.Status)
	assert.Equal(3, building.Sigset.Len())
	assert.Equal(uint64(0), building.Sigset.Index)

	// Bootstrap is a one-shot; another step changes nothing.
	assert.Nil(q.MaybeAdvance(1, vctx))
	assert.Equal(1, q.Len())
	assert.Equal(uint64(0), q.Index())
}

func TestQueueWindowBounds(t *testing.T) {
	assert := assert.New(t)

	signers, powers := threeSigners()
	q, vctx, _ := newTestBridge(t, 2, signers, powers)

	// Five pushes with capacity 2 retain only global indexes 3 and 4.
	for i := 0; i < 5; i++ {
		assert.Nil(q.pushBuilding(vctx))
	}
	assert.Equal(uint64(4), q.Index())
	assert.Equal(2, q.Len())
	assert.Equal(uint64(3), q.startIndex())

	_, err := q.Get(3)
	assert.Nil(err)
	_, err = q.Get(4)
	assert.Nil(err)

	_, err = q.Get(2)
	assert.True(errors.Is(err, ErrIndexOutOfBounds))
	_, err = q.Get(5)
	assert.True(errors.Is(err, ErrIndexOutOfBounds))

	// All returns the retained pairs, newest first.
	all := q.All()
	assert.Equal(2, len(all))
	assert.Equal(uint64(4), all[0].Index)
	assert.Equal(uint64(3), all[1].Index)
}

func TestQueueIndexMonotonicity(t *testing.T) {
	assert := assert.New(t)

	signers, powers := threeSigners()
	q, vctx, _ := newTestBridge(t, 10, signers, powers)

	// The first push keeps index 0, every later push increments it.
	assert.Nil(q.pushBuilding(vctx))
	assert.Equal(uint64(0), q.Index())
	assert.Nil(q.pushBuilding(vctx))
	assert.Equal(uint64(1), q.Index())
	assert.Nil(q.pushBuilding(vctx))
	assert.Equal(uint64(2), q.Index())
}

func TestQueueSigningLifecycle(t *testing.T) {
	assert := assert.New(t)

	viper.Set(common.CfgBridgeCheckpointInterval, uint64(5))
	defer viper.Set(common.CfgBridgeCheckpointInterval, uint64(0))

	signers, powers := threeSigners()
	q, vctx, _ := newTestBridge(t, 10, signers, powers)
	assert.Nil(q.MaybeAdvance(0, vctx))

	// Simulate a deposit and a withdrawal collected while building.
	building, err := q.Building()
	assert.Nil(err)
	assert.Nil(building.AddInput(&core.Input{Amount: 1000}))
	assert.Nil(building.AddOutput(&core.Output{Amount: 300, Script: common.Bytes{0x51}}))

	// The interval has not elapsed yet.
	assert.Nil(q.MaybeAdvance(4, vctx))
	_, ok := q.Signing()
	assert.False(ok)

	// At height 5 the building checkpoint is promoted.
	assert.Nil(q.MaybeAdvance(5, vctx))
	assert.Equal(2, q.Len())
	assert.Equal(uint64(1), q.Index())

	signing, ok := q.Signing()
	assert.True(ok)
	assert.Equal(uint64(0), signing.Index)
	assert.Equal(core.CheckpointStatusSigning, signing.Status)

	// The reserve output sits at vout 0 and re-custodies the surplus.
	assert.Equal(2, len(signing.Outputs))
	assert.Equal(uint64(700), signing.Outputs[0].Amount)
	assert.True(len(signing.Outputs[0].Script) > 0)
	assert.Equal(uint64(300), signing.Outputs[1].Amount)

	// The aggregate signature is armed with the signing digest.
	digest, err := signing.SigningDigest()
	assert.Nil(err)
	assert.Equal(digest, signing.Sig.Message)

	// A fresh building checkpoint sits behind the signing one.
	building, err = q.Building()
	assert.Nil(err)
	assert.Equal(uint64(1), building.Index)
	assert.Equal(core.CheckpointStatusBuilding, building.Status)
	assert.Equal(0, len(building.Inputs))

	// No second promotion while one checkpoint is still signing.
	assert.Nil(q.MaybeAdvance(10, vctx))
	assert.Equal(2, q.Len())

	// Two of three equal-weight signatures fall short of the quorum.
	keyIndex := signing.Sigset.Index
	assert.Nil(q.SignCheckpoint(
		signers["0x111"].PubkeyAt(keyIndex), signers["0x111"].SignDigest(keyIndex, digest)))
	assert.Nil(q.SignCheckpoint(
		signers["0x222"].PubkeyAt(keyIndex), signers["0x222"].SignDigest(keyIndex, digest)))
	assert.Equal(core.CheckpointStatusSigning, signing.Status)

	// A rejected signature leaves the checkpoint untouched.
	outsider := core.NewTestSigner(9)
	err = q.SignCheckpoint(outsider.PubkeyAt(keyIndex), outsider.SignDigest(keyIndex, digest))
	assert.True(errors.Is(err, core.ErrSignatureRejected))
	assert.Equal(core.CheckpointStatusSigning, signing.Status)

	// The third signature completes the checkpoint.
	assert.Nil(q.SignCheckpoint(
		signers["0x333"].PubkeyAt(keyIndex), signers["0x333"].SignDigest(keyIndex, digest)))
	assert.Equal(core.CheckpointStatusComplete, signing.Status)
	_, ok = q.Signing()
	assert.False(ok)
	assert.Equal(1, len(q.Completed()))

	// The reserve input chains custody into the building checkpoint.
	assert.Equal(1, len(building.Inputs))
	reserveIn := building.Inputs[0]
	txid, err := signing.Txid()
	assert.Nil(err)
	assert.Equal(txid, reserveIn.PrevTxid)
	assert.Equal(uint32(0), reserveIn.PrevVout)
	assert.Equal(uint64(700), reserveIn.Amount)
	assert.Equal(common.Bytes(signing.Outputs[0].Script), reserveIn.ScriptPubkey)
	assert.NotNil(reserveIn.Sig)
	assert.Equal(building.Sigset.TotalVotingPower(), reserveIn.Sig.TotalPower)

	// With nothing left to sign, further submissions are rejected.
	err = q.SignCheckpoint(
		signers["0x111"].PubkeyAt(keyIndex), signers["0x111"].SignDigest(keyIndex, digest))
	assert.True(errors.Is(err, ErrNoCheckpointToSign))
}

func TestQueuePersistence(t *testing.T) {
	assert := assert.New(t)

	viper.Set(common.CfgBridgeCheckpointInterval, uint64(5))
	defer viper.Set(common.CfgBridgeCheckpointInterval, uint64(0))

	signers, powers := threeSigners()
	q, vctx, db := newTestBridge(t, 10, signers, powers)
	assert.Nil(q.MaybeAdvance(0, vctx))

	building, err := q.Building()
	assert.Nil(err)
	assert.Nil(building.AddInput(&core.Input{Amount: 1000}))
	assert.Nil(q.saveCheckpoint(building.Index, building.Checkpoint))
	assert.Nil(q.MaybeAdvance(5, vctx))

	signing, ok := q.Signing()
	assert.True(ok)
	keyIndex := signing.Sigset.Index
	assert.Nil(q.SignCheckpoint(
		signers["0x111"].PubkeyAt(keyIndex), signers["0x111"].SignDigest(keyIndex, signing.Sig.Message)))

	// A queue reloaded from the same store reproduces the state.
	q2, err := NewCheckpointQueue(db, 10)
	assert.Nil(err)
	assert.Equal(q.Index(), q2.Index())
	assert.Equal(q.Len(), q2.Len())

	signing2, ok := q2.Signing()
	assert.True(ok)
	assert.Equal(signing.Index, signing2.Index)
	assert.Equal(core.CheckpointStatusSigning, signing2.Status)
	assert.Equal(signing.Sig.Message, signing2.Sig.Message)
	assert.Equal(uint64(100), signing2.Sig.SignedPower)
	assert.Equal(1, len(signing2.Sig.Sigs))
	assert.Equal(uint64(1000), signing2.InputAmount())

	building2, err := q2.Building()
	assert.Nil(err)
	assert.Equal(3, building2.Sigset.Len())
	assert.Equal(building.Sigset.Signatories, building2.Sigset.Signatories)

	// Evicted checkpoint records are gone from the store.
	q3, vctx3, db3 := newTestBridge(t, 2, signers, powers)
	for i := 0; i < 5; i++ {
		assert.Nil(q3.pushBuilding(vctx3))
	}
	cp := &core.Checkpoint{}
	assert.Equal(store.ErrKeyNotFound, db3.Get(checkpointKey(0), cp))
	assert.Nil(db3.Get(checkpointKey(4), cp))
}
