package bridge

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/common/util"
	"github.com/pegbridge/pegbridge/core"
	"github.com/pegbridge/pegbridge/store"
)

var logger *log.Entry = util.GetLoggerForModule("bridge")

const (
	// DBQueueStubKey is the DB key of the queue metadata record.
	DBQueueStubKey = "bridge/cq/stub"
	// DBCheckpointKeyPrefix prefixes the per-checkpoint DB records, keyed by
	// global index.
	DBCheckpointKeyPrefix = "bridge/cq/ckpt/"
)

var (
	// ErrIndexOutOfBounds is returned when a requested global index falls
	// outside the currently retained window.
	ErrIndexOutOfBounds = errors.New("checkpoint index out of bounds")

	// ErrNoCheckpointToSign is returned when a signature is submitted while no
	// checkpoint is in the signing state.
	ErrNoCheckpointToSign = errors.New("no checkpoint to be signed")
)

// queueStub is the persisted queue metadata.
type queueStub struct {
	Index               uint64
	Len                 uint64
	BuildingStartHeight uint64
}

// CheckpointQueue is a bounded window of recent checkpoints addressed by a
// monotonically increasing global index. It owns the checkpoint lifecycle and
// signature intake. All mutation is assumed to be serialized by the host's
// state-machine runtime.
type CheckpointQueue struct {
	db       store.Store
	capacity uint64

	index               uint64 // global index of the newest checkpoint
	window              []*core.Checkpoint
	buildingStartHeight uint64
}

// IndexedCheckpoint pairs a checkpoint with its global index.
type IndexedCheckpoint struct {
	Index      uint64
	Checkpoint *core.Checkpoint
}

// SigningCheckpoint is a handle to the checkpoint currently collecting
// signatures.
type SigningCheckpoint struct {
	Index uint64
	*core.Checkpoint
}

// BuildingCheckpoint is a handle to the newest checkpoint.
type BuildingCheckpoint struct {
	Index uint64
	*core.Checkpoint
}

// NewCheckpointQueue loads the queue state from db, or starts empty if no
// state has been persisted yet. capacity bounds the retained window.
func NewCheckpointQueue(db store.Store, capacity uint64) (*CheckpointQueue, error) {
	if capacity < 2 {
		// The building and signing checkpoints must always be retained.
		capacity = 2
	}
	q := &CheckpointQueue{
		db:       db,
		capacity: capacity,
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func checkpointKey(index uint64) common.Bytes {
	return common.Bytes(fmt.Sprintf("%s%d", DBCheckpointKeyPrefix, index))
}

func (q *CheckpointQueue) load() error {
	stub := &queueStub{}
	err := q.db.Get(common.Bytes(DBQueueStubKey), stub)
	if err == store.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to load checkpoint queue stub")
	}

	q.index = stub.Index
	q.buildingStartHeight = stub.BuildingStartHeight
	if stub.Len == 0 {
		return nil
	}

	start := stub.Index + 1 - stub.Len
	for i := start; i <= stub.Index; i++ {
		cp := &core.Checkpoint{}
		if err := q.db.Get(checkpointKey(i), cp); err != nil {
			return errors.Wrapf(err, "failed to load checkpoint %v", i)
		}
		q.window = append(q.window, cp)
	}

	logger.WithFields(log.Fields{"index": q.index, "len": len(q.window)}).
		Info("Loaded checkpoint queue")
	return nil
}

func (q *CheckpointQueue) saveStub() error {
	stub := &queueStub{
		Index:               q.index,
		Len:                 uint64(len(q.window)),
		BuildingStartHeight: q.buildingStartHeight,
	}
	return q.db.Put(common.Bytes(DBQueueStubKey), stub)
}

func (q *CheckpointQueue) saveCheckpoint(index uint64, cp *core.Checkpoint) error {
	return q.db.Put(checkpointKey(index), cp)
}

// startIndex returns the global index of the oldest retained checkpoint.
func (q *CheckpointQueue) startIndex() uint64 {
	return q.index + 1 - uint64(len(q.window))
}

// pos translates a global index into a window position.
func (q *CheckpointQueue) pos(index uint64) (int, error) {
	if len(q.window) == 0 || index > q.index || index < q.startIndex() {
		return 0, errors.Wrapf(ErrIndexOutOfBounds,
			"requested index %v, retained window [%v, %v]", index, q.startIndex(), q.index)
	}
	return int(index - q.startIndex()), nil
}

// Get returns the checkpoint with the given global index.
func (q *CheckpointQueue) Get(index uint64) (*core.Checkpoint, error) {
	p, err := q.pos(index)
	if err != nil {
		return nil, err
	}
	return q.window[p], nil
}

// Index returns the global index of the newest checkpoint.
func (q *CheckpointQueue) Index() uint64 {
	return q.index
}

// Len returns the number of retained checkpoints.
func (q *CheckpointQueue) Len() int {
	return len(q.window)
}

// All returns every retained (global index, checkpoint) pair, newest first.
func (q *CheckpointQueue) All() []IndexedCheckpoint {
	out := make([]IndexedCheckpoint, 0, len(q.window))
	for p := len(q.window) - 1; p >= 0; p-- {
		out = append(out, IndexedCheckpoint{
			Index:      q.startIndex() + uint64(p),
			Checkpoint: q.window[p],
		})
	}
	return out
}

// Completed returns the completed prefix of the window, oldest first.
func (q *CheckpointQueue) Completed() []*core.Checkpoint {
	out := []*core.Checkpoint{}
	for _, cp := range q.window {
		if cp.Status != core.CheckpointStatusComplete {
			break
		}
		out = append(out, cp)
	}
	return out
}

// Signing returns a handle to the checkpoint currently collecting signatures,
// if any. By construction it is always the second-newest entry.
func (q *CheckpointQueue) Signing() (*SigningCheckpoint, bool) {
	if len(q.window) < 2 {
		return nil, false
	}
	second := q.window[len(q.window)-2]
	if second.Status != core.CheckpointStatusSigning {
		return nil, false
	}
	return &SigningCheckpoint{Index: q.index - 1, Checkpoint: second}, true
}

// Building returns a handle to the newest checkpoint.
func (q *CheckpointQueue) Building() (*BuildingCheckpoint, error) {
	if len(q.window) == 0 {
		return nil, errors.Wrap(ErrIndexOutOfBounds, "queue is uninitialized")
	}
	return &BuildingCheckpoint{Index: q.index, Checkpoint: q.window[len(q.window)-1]}, nil
}

// ActiveSigset returns a copy of the newest checkpoint's signatory set.
func (q *CheckpointQueue) ActiveSigset() (*core.SignatorySet, error) {
	building, err := q.Building()
	if err != nil {
		return nil, err
	}
	return building.Sigset.Copy(), nil
}

// MaybeAdvance runs once per state-transition step. It bootstraps the queue
// when a nonempty signatory set first exists, and promotes the building
// checkpoint to signing once the configured checkpoint interval (in blocks)
// has elapsed. height is the chain's current block height; no wall clock is
// ever consulted.
func (q *CheckpointQueue) MaybeAdvance(height uint64, vctx core.ValidatorCtx) error {
	if len(q.window) == 0 {
		sigset, err := core.SignatorySetFromValidatorCtx(q.index, vctx)
		if err != nil {
			return err
		}
		if sigset.Len() == 0 {
			return nil
		}
		if err := q.pushBuilding(vctx); err != nil {
			return err
		}
		q.buildingStartHeight = height
		return q.saveStub()
	}

	if q.shouldStartSigning(height) {
		return q.startSigning(height, vctx)
	}
	return nil
}

// shouldStartSigning decides the building->signing promotion purely from the
// block height delta since the building checkpoint was created. A zero
// interval disables the promotion.
func (q *CheckpointQueue) shouldStartSigning(height uint64) bool {
	interval := viper.GetUint64(common.CfgBridgeCheckpointInterval)
	if interval == 0 {
		return false
	}
	if _, ok := q.Signing(); ok {
		return false
	}
	return height >= q.buildingStartHeight+interval
}

// startSigning freezes the building checkpoint and starts its signature
// round: the reserve output re-custodying leftover funds under the next
// signatory set is inserted at vout 0, the aggregate threshold signature is
// armed with the signing digest, the checkpoint moves to signing, and a fresh
// building checkpoint is pushed behind it.
func (q *CheckpointQueue) startSigning(height uint64, vctx core.ValidatorCtx) error {
	if _, ok := q.Signing(); ok {
		return errors.New("previous checkpoint is still being signed")
	}
	building, err := q.Building()
	if err != nil {
		return err
	}

	// The sigset of the upcoming building checkpoint; pushBuilding below
	// derives it for the same (pre-advance) index.
	nextSigset, err := core.SignatorySetFromValidatorCtx(q.index, vctx)
	if err != nil {
		return err
	}
	if nextSigset.Len() == 0 {
		return errors.New("cannot start signing: no eligible signers for next checkpoint")
	}
	reserveScript, err := nextSigset.RedeemScript()
	if err != nil {
		return err
	}

	cp := building.Checkpoint
	if cp.OutputAmount() > cp.InputAmount() {
		return errors.Errorf("checkpoint %v outputs exceed inputs", building.Index)
	}
	reserveAmount := cp.InputAmount() - cp.OutputAmount()
	cp.Outputs = append([]*core.Output{{Amount: reserveAmount, Script: reserveScript}}, cp.Outputs...)

	cp.Sig = core.NewThresholdSig(cp.Sigset)
	digest, err := cp.SigningDigest()
	if err != nil {
		return err
	}
	cp.Sig.SetMessage(digest)
	for _, in := range cp.Inputs {
		if in.Sig != nil {
			in.Sig.SetMessage(digest)
		}
	}
	cp.Status = core.CheckpointStatusSigning

	if err := q.saveCheckpoint(building.Index, cp); err != nil {
		return err
	}
	if err := q.pushBuilding(vctx); err != nil {
		return err
	}
	q.buildingStartHeight = height
	if err := q.saveStub(); err != nil {
		return err
	}

	logger.WithFields(log.Fields{
		"index":   building.Index,
		"reserve": reserveAmount,
	}).Info("Checkpoint advanced to signing")
	return nil
}

// pushBuilding appends a new empty building checkpoint. The signatory set is
// derived for the captured pre-advance index and attached before the
// checkpoint becomes observable, so no caller ever sees a checkpoint without
// its signer set. The first checkpoint ever pushed keeps index 0.
func (q *CheckpointQueue) pushBuilding(vctx core.ValidatorCtx) error {
	index := q.index
	if len(q.window) > 0 {
		q.index++
	}

	sigset, err := core.SignatorySetFromValidatorCtx(index, vctx)
	if err != nil {
		return err
	}

	cp := core.NewCheckpoint()
	cp.Sigset = sigset
	q.window = append(q.window, cp)

	if uint64(len(q.window)) > q.capacity {
		evicted := q.startIndex()
		if err := q.db.Delete(checkpointKey(evicted)); err != nil {
			return errors.Wrapf(err, "failed to evict checkpoint %v", evicted)
		}
		q.window = q.window[1:]
	}

	if err := q.saveCheckpoint(q.index, cp); err != nil {
		return err
	}
	if err := q.saveStub(); err != nil {
		return err
	}

	logger.WithFields(log.Fields{
		"index":       q.index,
		"signatories": sigset.Len(),
	}).Info("Pushed new building checkpoint")
	return nil
}

// SignCheckpoint records one member's signature on the signing checkpoint.
// Once the aggregate signature reaches quorum the checkpoint completes and a
// reserve input referencing its vout 0 is seeded into the building
// checkpoint, chaining custody forward.
func (q *CheckpointQueue) SignCheckpoint(pubkey common.Bytes, sig common.Bytes) error {
	signing, ok := q.Signing()
	if !ok {
		return ErrNoCheckpointToSign
	}

	if err := signing.Sig.Sign(pubkey, sig); err != nil {
		return err
	}

	if signing.Sig.Done() {
		signing.Status = core.CheckpointStatusComplete

		building, err := q.Building()
		if err != nil {
			return err
		}
		if len(signing.Outputs) == 0 {
			return errors.Errorf("completed checkpoint %v has no reserve output", signing.Index)
		}
		txid, err := signing.Txid()
		if err != nil {
			return err
		}
		reserveOut := signing.Outputs[0]
		reserveIn := &core.Input{
			PrevTxid:     txid,
			PrevVout:     0,
			Amount:       reserveOut.Amount,
			ScriptPubkey: common.CopyBytes(reserveOut.Script),
			Sig:          core.NewThresholdSig(building.Sigset),
		}
		if err := building.AddInput(reserveIn); err != nil {
			return err
		}
		if err := q.saveCheckpoint(building.Index, building.Checkpoint); err != nil {
			return err
		}

		logger.WithFields(log.Fields{
			"index": signing.Index,
			"txid":  txid,
		}).Info("Checkpoint completed, reserve carried forward")
	}

	return q.saveCheckpoint(signing.Index, signing.Checkpoint)
}
