// Package tuple holds the ordered, key-addressed record container shared by
// the dictionary codec and the persistence store.
//
// Records live in a slice in insertion order and are addressed by position.
// A key to position map is maintained alongside the slice, so Find is a map
// lookup rather than a walk.
package tuple

import (
	"errors"
	"fmt"
)

var ErrDuplicateKey = errors.New("a record with this key already exists")

// Record is anything the store can hold.
type Record interface {
	RecordKey() uint32
}

// Releaser is implemented by records owning heap payloads. Remove calls
// Release before the slot is dropped.
type Releaser interface {
	Release()
}

type Store[R Record] struct {
	records []R
	index   *mapIndex
}

func NewStore[R Record](capacityHint int) *Store[R] {
	return &Store[R]{
		records: make([]R, 0, capacityHint),
		index:   newMapIndex(),
	}
}

// Append adds r at the end. Keys are unique within a store.
func (s *Store[R]) Append(r R) error {
	key := r.RecordKey()
	if _, ok := s.index.Get(key); ok {
		return fmt.Errorf("append key %d: %w", key, ErrDuplicateKey)
	}
	s.records = append(s.records, r)
	return s.index.Set(key, len(s.records)-1)
}

func (s *Store[R]) Find(key uint32) (int, bool) {
	return s.index.Get(key)
}

// Get returns the record at position i. Out of range panics, like a slice.
func (s *Store[R]) Get(i int) R {
	return s.records[i]
}

// Replace swaps the record at position i for r. The key must not change.
func (s *Store[R]) Replace(i int, r R) error {
	if old := s.records[i].RecordKey(); old != r.RecordKey() {
		return fmt.Errorf("replace at %d: key %d does not match %d", i, r.RecordKey(), old)
	}
	s.records[i] = r
	return nil
}

func (s *Store[R]) Remove(i int) {
	removed := s.records[i]
	if releaser, ok := any(removed).(Releaser); ok {
		releaser.Release()
	}
	s.index.Delete(removed.RecordKey())

	copy(s.records[i:], s.records[i+1:])
	var zero R
	s.records[len(s.records)-1] = zero
	s.records = s.records[:len(s.records)-1]

	for pos := i; pos < len(s.records); pos++ {
		_ = s.index.Set(s.records[pos].RecordKey(), pos)
	}
}

func (s *Store[R]) Count() int {
	return len(s.records)
}

// Clear empties the store but keeps the slice capacity. Records are not
// released; callers owning payloads release them first.
func (s *Store[R]) Clear() {
	var zero R
	for i := range s.records {
		s.records[i] = zero
	}
	s.records = s.records[:0]
	s.index.reset()
}

// Range visits records in insertion order until method returns false.
func (s *Store[R]) Range(method func(i int, r R) bool) {
	for i, r := range s.records {
		if !method(i, r) {
			return
		}
	}
}
