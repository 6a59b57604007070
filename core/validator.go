package core

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/pegbridge/pegbridge/common"
)

var (
	// ErrValidatorNotFound for ID is not found in validator set.
	ErrValidatorNotFound = errors.New("ValidatorNotFound")
)

// Validator contains the public information of a validator.
type Validator struct {
	address     common.Address
	votingPower uint64
}

// NewValidator creates a new validator instance.
func NewValidator(addressStr string, votingPower uint64) Validator {
	address := common.HexToAddress(addressStr)
	return Validator{address, votingPower}
}

// Address returns the address of the validator.
func (v Validator) Address() common.Address {
	return v.address
}

// ID returns the ID of the validator, which is its address.
func (v Validator) ID() common.Address {
	return v.address
}

// VotingPower returns the voting power of the validator.
func (v Validator) VotingPower() uint64 {
	return v.votingPower
}

func (v Validator) String() string {
	return fmt.Sprintf("Validator{address: %v, votingPower: %v}", v.address, v.votingPower)
}

// ValidatorSet represents a set of validators.
type ValidatorSet struct {
	validators []Validator
}

// NewValidatorSet returns a new instance of ValidatorSet.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{
		validators: []Validator{},
	}
}

// Copy creates a copy of this validator set.
func (s *ValidatorSet) Copy() *ValidatorSet {
	ret := NewValidatorSet()
	for _, v := range s.Validators() {
		ret.AddValidator(v)
	}
	return ret
}

// Size returns the number of the validators in the validator set.
func (s *ValidatorSet) Size() int {
	return len(s.validators)
}

// ByID implements sort.Interface for ValidatorSet based on ID.
type ByID []Validator

func (b ByID) Len() int           { return len(b) }
func (b ByID) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b ByID) Less(i, j int) bool { return bytes.Compare(b[i].ID().Bytes(), b[j].ID().Bytes()) < 0 }

// GetValidator returns a validator if a matching ID is found.
func (s *ValidatorSet) GetValidator(id common.Address) (Validator, error) {
	for _, v := range s.validators {
		if v.ID() == id {
			return v, nil
		}
	}
	return Validator{}, ErrValidatorNotFound
}

// AddValidator adds a validator to the validator set.
func (s *ValidatorSet) AddValidator(validator Validator) {
	s.validators = append(s.validators, validator)
	sort.Sort(ByID(s.validators))
}

// Validators returns a slice of validators, ordered by ID.
func (s *ValidatorSet) Validators() []Validator {
	return s.validators
}

// TotalVotingPower returns the total voting power of the validators in the set.
func (s *ValidatorSet) TotalVotingPower() uint64 {
	total := uint64(0)
	for _, v := range s.validators {
		total += v.VotingPower()
	}
	return total
}

// ValidatorCtx provides the read-only validator context a signatory set is
// derived from: the current validator power table plus each validator's
// registered Bitcoin extended public key.
type ValidatorCtx interface {
	Validators() *ValidatorSet
	SignerKey(addr common.Address) (xpub string, ok bool)
}
