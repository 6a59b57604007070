package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/store"
	"github.com/pegbridge/pegbridge/store/database/backend"
)

type kvInner struct {
	Amount uint64
	Script common.Bytes
}

type kvRecord struct {
	Index   uint64
	Entries []kvInner
	Extra   *kvInner `rlp:"nil"`
}

func TestKVStore(t *testing.T) {
	assert := assert.New(t)

	kv := NewKVStore(backend.NewMemDatabase())
	key := common.Bytes("kv/record/1")

	out := &kvRecord{}
	assert.Equal(store.ErrKeyNotFound, kv.Get(key, out))

	in := &kvRecord{
		Index: 9,
		Entries: []kvInner{
			{Amount: 100, Script: common.Bytes{0x51}},
			{Amount: 200, Script: common.Bytes{0x52}},
		},
	}
	assert.Nil(kv.Put(key, in))

	assert.Nil(kv.Get(key, out))
	assert.Equal(uint64(9), out.Index)
	assert.Equal(2, len(out.Entries))
	assert.Equal(uint64(200), out.Entries[1].Amount)
	assert.Nil(out.Extra)

	// Nil-tagged pointers survive the round trip when set.
	in.Extra = &kvInner{Amount: 5}
	assert.Nil(kv.Put(key, in))
	out = &kvRecord{}
	assert.Nil(kv.Get(key, out))
	assert.NotNil(out.Extra)
	assert.Equal(uint64(5), out.Extra.Amount)

	assert.Nil(kv.Delete(key))
	assert.Equal(store.ErrKeyNotFound, kv.Get(key, out))
}
