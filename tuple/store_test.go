package tuple

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testRecord struct {
	key      uint32
	value    string
	released *int
}

func (r *testRecord) RecordKey() uint32 {
	return r.key
}

func (r *testRecord) Release() {
	if r.released != nil {
		*r.released++
	}
}

func TestMapIndex_SetGet(t *testing.T) {
	index := newMapIndex()

	require.NoError(t, index.Set(1, 1))
	require.NoError(t, index.Set(2, 3))

	value, ok := index.Get(1)
	require.True(t, ok)
	require.Equal(t, 1, value)
	value, ok = index.Get(2)
	require.True(t, ok)
	require.Equal(t, 3, value)

	index.Delete(1)
	_, ok = index.Get(1)
	require.False(t, ok)
	require.Equal(t, 1, index.Len())
}

func TestStoreAppendFind(t *testing.T) {
	store := NewStore[*testRecord](4)
	require.NoError(t, store.Append(&testRecord{key: 10, value: "a"}))
	require.NoError(t, store.Append(&testRecord{key: 20, value: "b"}))
	require.NoError(t, store.Append(&testRecord{key: 5, value: "c"}))

	require.Equal(t, 3, store.Count())

	i, ok := store.Find(20)
	require.True(t, ok)
	require.Equal(t, 1, i)
	require.Equal(t, "b", store.Get(i).value)

	_, ok = store.Find(99)
	require.False(t, ok)
}

func TestStoreAppendDuplicate(t *testing.T) {
	store := NewStore[*testRecord](1)
	require.NoError(t, store.Append(&testRecord{key: 1}))
	require.ErrorIs(t, store.Append(&testRecord{key: 1}), ErrDuplicateKey)
	require.Equal(t, 1, store.Count())
}

func TestStoreRemoveReleasesAndReindexes(t *testing.T) {
	released := 0
	store := NewStore[*testRecord](3)
	for _, key := range []uint32{1, 2, 3} {
		require.NoError(t, store.Append(&testRecord{key: key, released: &released}))
	}

	i, ok := store.Find(1)
	require.True(t, ok)
	store.Remove(i)

	require.Equal(t, 1, released)
	require.Equal(t, 2, store.Count())

	i, ok = store.Find(3)
	require.True(t, ok)
	require.Equal(t, 1, i)
	require.Equal(t, uint32(3), store.Get(i).key)

	_, ok = store.Find(1)
	require.False(t, ok)
}

func TestStoreRangeKeepsInsertionOrder(t *testing.T) {
	store := NewStore[*testRecord](3)
	for _, key := range []uint32{30, 10, 20} {
		require.NoError(t, store.Append(&testRecord{key: key}))
	}

	var keys []uint32
	store.Range(func(i int, r *testRecord) bool {
		keys = append(keys, r.key)
		return true
	})
	require.Equal(t, []uint32{30, 10, 20}, keys)

	keys = keys[:0]
	store.Range(func(i int, r *testRecord) bool {
		keys = append(keys, r.key)
		return i < 1
	})
	require.Equal(t, []uint32{30, 10}, keys)
}

func TestStoreClearDoesNotRelease(t *testing.T) {
	released := 0
	store := NewStore[*testRecord](2)
	require.NoError(t, store.Append(&testRecord{key: 1, released: &released}))
	store.Clear()

	require.Equal(t, 0, store.Count())
	require.Equal(t, 0, released)
	_, ok := store.Find(1)
	require.False(t, ok)
	require.NoError(t, store.Append(&testRecord{key: 1}))
}

func TestStoreReplace(t *testing.T) {
	store := NewStore[*testRecord](1)
	require.NoError(t, store.Append(&testRecord{key: 7, value: "old"}))
	require.NoError(t, store.Replace(0, &testRecord{key: 7, value: "new"}))
	require.Equal(t, "new", store.Get(0).value)
	require.Error(t, store.Replace(0, &testRecord{key: 8}))
}
