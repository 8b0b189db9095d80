package tuple

import (
	kv_settings "kv-settings"
)

var _ kv_settings.Index[uint32, int] = new(mapIndex)

// mapIndex is the key to position index kept next to the ordered records.
type mapIndex struct {
	index map[uint32]int
}

func newMapIndex() *mapIndex {
	return &mapIndex{
		index: make(map[uint32]int),
	}
}

func (m *mapIndex) Get(key uint32) (int, bool) {
	value, ok := m.index[key]
	return value, ok
}

func (m *mapIndex) Set(key uint32, value int) error {
	m.index[key] = value
	return nil
}

func (m *mapIndex) Delete(key uint32) {
	delete(m.index, key)
}

func (m *mapIndex) Range(method func(key uint32, value int)) {
	for key, value := range m.index {
		method(key, value)
	}
}

func (m *mapIndex) Len() int {
	return len(m.index)
}

func (m *mapIndex) reset() {
	clear(m.index)
}
