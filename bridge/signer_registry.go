package bridge

import (
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/pkg/errors"

	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/core"
	"github.com/pegbridge/pegbridge/store"
)

// DBSignerKeyPrefix prefixes the consensus address -> xpub records.
const DBSignerKeyPrefix = "bridge/signers/"

// SignerRegistry is the persistent map from validator consensus address to
// registered Bitcoin extended public key.
type SignerRegistry struct {
	db store.Store
}

// NewSignerRegistry creates a registry backed by db.
func NewSignerRegistry(db store.Store) *SignerRegistry {
	return &SignerRegistry{db: db}
}

func signerKey(addr common.Address) common.Bytes {
	return append(common.Bytes(DBSignerKeyPrefix), addr.Bytes()...)
}

// SetSignerKey registers the xpub for the given validator. Private extended
// keys and unparseable keys are rejected.
func (r *SignerRegistry) SetSignerKey(addr common.Address, xpub string) error {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return errors.Wrapf(err, "invalid extended key for validator %v", addr)
	}
	if key.IsPrivate() {
		return errors.Errorf("refusing to register private extended key for validator %v", addr)
	}
	return r.db.Put(signerKey(addr), xpub)
}

// SignerKey returns the registered xpub for the given validator, if any.
func (r *SignerRegistry) SignerKey(addr common.Address) (string, bool) {
	var xpub string
	if err := r.db.Get(signerKey(addr), &xpub); err != nil {
		return "", false
	}
	return xpub, true
}

var _ core.ValidatorCtx = (*ValidatorContext)(nil)

// ValidatorContext combines the current validator power table with the signer
// registry, forming the read-only context signatory sets are derived from.
type ValidatorContext struct {
	valset   *core.ValidatorSet
	registry *SignerRegistry
}

// NewValidatorContext creates a validator context.
func NewValidatorContext(valset *core.ValidatorSet, registry *SignerRegistry) *ValidatorContext {
	return &ValidatorContext{valset: valset, registry: registry}
}

// Validators returns the current validator set.
func (c *ValidatorContext) Validators() *core.ValidatorSet {
	return c.valset
}

// SignerKey returns the registered Bitcoin key of the given validator.
func (c *ValidatorContext) SignerKey(addr common.Address) (string, bool) {
	return c.registry.SignerKey(addr)
}
