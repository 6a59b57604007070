package node

import (
	"context"
	"sync"

	"github.com/spf13/viper"

	"github.com/pegbridge/pegbridge/bridge"
	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/core"
	"github.com/pegbridge/pegbridge/rpc"
	"github.com/pegbridge/pegbridge/store"
	"github.com/pegbridge/pegbridge/store/database"
	"github.com/pegbridge/pegbridge/store/kvstore"
)

// Node wires the persistent store, the checkpoint queue, the signer registry
// and the RPC server into one runnable unit.
type Node struct {
	Store        store.Store
	Queue        *bridge.CheckpointQueue
	Registry     *bridge.SignerRegistry
	ValidatorCtx *bridge.ValidatorContext
	RPC          *rpc.BridgeRPCServer

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type Params struct {
	DB         database.Database
	Validators *core.ValidatorSet
}

// NewNode creates a Node instance from the given params.
func NewNode(params *Params) (*Node, error) {
	kv := kvstore.NewKVStore(params.DB)
	registry := bridge.NewSignerRegistry(kv)
	queue, err := bridge.NewCheckpointQueue(kv, viper.GetUint64(common.CfgBridgeCheckpointWindow))
	if err != nil {
		return nil, err
	}

	node := &Node{
		Store:        kv,
		Queue:        queue,
		Registry:     registry,
		ValidatorCtx: bridge.NewValidatorContext(params.Validators, registry),

		wg: &sync.WaitGroup{},
	}

	if viper.GetBool(common.CfgRPCEnabled) {
		node.RPC = rpc.NewBridgeRPCServer(queue)
	}

	return node, nil
}

// AdvanceStep runs one deterministic state-transition step at the given block
// height. The host invokes it once per block.
func (n *Node) AdvanceStep(height uint64) error {
	return n.Queue.MaybeAdvance(height, n.ValidatorCtx)
}

// Start starts sub components and kicks off the main loop.
func (n *Node) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	n.ctx = c
	n.cancel = cancel

	if n.RPC != nil {
		n.RPC.Start(n.ctx)
	}
}

// Stop notifies all sub components to stop without blocking.
func (n *Node) Stop() {
	n.cancel()
	n.stopped = true
}

// Wait blocks until all sub components stop.
func (n *Node) Wait() {
	if n.RPC != nil {
		n.RPC.Wait()
	}
}
