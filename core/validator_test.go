package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pegbridge/pegbridge/common"
)

func TestValidatorSet(t *testing.T) {
	assert := assert.New(t)

	va1 := NewValidator("0x111", 100000001)
	va2 := NewValidator("0x222", 100000000)
	va3 := NewValidator("0x333", 50000000)
	va4 := NewValidator("0x444", 50000000)

	vs := NewValidatorSet()
	vs.AddValidator(va1)
	vs.AddValidator(va2)
	vs.AddValidator(va3)
	vs.AddValidator(va4)

	assert.Equal(4, vs.Size())
	assert.Equal(uint64(300000001), vs.TotalVotingPower())

	vax, err := vs.GetValidator(common.HexToAddress("0x111"))
	assert.Nil(err)
	assert.Equal(common.HexToAddress("0x111"), vax.ID())
	assert.Equal(uint64(100000001), vax.VotingPower())

	_, err = vs.GetValidator(common.HexToAddress("0x555"))
	assert.NotNil(err)

	// Validators are kept sorted by ID.
	validators := vs.Validators()
	for i := 1; i < len(validators); i++ {
		assert.True(validators[i-1].ID().Hex() < validators[i].ID().Hex())
	}

	// Copy is independent of the original.
	vsCopy := vs.Copy()
	vsCopy.AddValidator(NewValidator("0x555", 1))
	assert.Equal(4, vs.Size())
	assert.Equal(5, vsCopy.Size())
}
