package core

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/pegbridge/pegbridge/common"
)

// TestSigner holds a deterministic master key for tests. Its neutered xpub can
// be registered for a validator, and it can produce the matching child-key
// signatures for any checkpoint index.
type TestSigner struct {
	master *hdkeychain.ExtendedKey
}

// NewTestSigner creates a test signer from a one-byte seed.
func NewTestSigner(seed byte) *TestSigner {
	seedBytes := make([]byte, 32)
	for i := range seedBytes {
		seedBytes[i] = seed
	}
	master, err := hdkeychain.NewMaster(seedBytes, &chaincfg.MainNetParams)
	if err != nil {
		panic(fmt.Sprintf("Failed to create test signer: %v", err))
	}
	return &TestSigner{master: master}
}

// Xpub returns the signer's extended public key string.
func (s *TestSigner) Xpub() string {
	neutered, err := s.master.Neuter()
	if err != nil {
		panic(err)
	}
	return neutered.String()
}

// PubkeyAt returns the compressed child pubkey derived at the given
// checkpoint index.
func (s *TestSigner) PubkeyAt(index uint64) common.Bytes {
	child, err := s.master.Derive(uint32(index))
	if err != nil {
		panic(err)
	}
	pubkey, err := child.ECPubKey()
	if err != nil {
		panic(err)
	}
	return pubkey.SerializeCompressed()
}

// SignDigest signs the digest with the child key derived at the given
// checkpoint index and returns the DER-encoded signature.
func (s *TestSigner) SignDigest(index uint64, digest common.Bytes) common.Bytes {
	child, err := s.master.Derive(uint32(index))
	if err != nil {
		panic(err)
	}
	privkey, err := child.ECPrivKey()
	if err != nil {
		panic(err)
	}
	return ecdsa.Sign(privkey, digest).Serialize()
}
