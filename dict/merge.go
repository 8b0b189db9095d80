package dict

import (
	"fmt"

	"go.uber.org/zap"
)

// KeyUpdatedFunc is told about every destination key overwritten by a
// merge. oldTuple is a detached copy of the previous value.
type KeyUpdatedFunc func(key uint32, newTuple, oldTuple Tuple)

type MergeResult struct {
	Updated  int
	Appended int
	Dropped  int
	// Size is the destination's EndWrite after the merge.
	Size int
}

// Merge copies every tuple of source into dest, in source order. Keys dest
// already holds are overwritten in place. Other keys are appended at dest's
// write offset when updateExistingOnly is false and a slot still fits below
// destCapacity; the rest are dropped. destCapacity may extend dest's view of
// its buffer up to the buffer's capacity.
func Merge(dest *Dictionary, destCapacity int, source *Dictionary, updateExistingOnly bool, onKeyUpdated KeyUpdatedFunc) (MergeResult, error) {
	if dest.recordSize != source.recordSize {
		return MergeResult{}, fmt.Errorf("merge %d byte records into %d: %w", source.recordSize, dest.recordSize, ErrRecordSizeMismatch)
	}
	if destCapacity < dest.seg.offset || destCapacity > cap(dest.seg.data) {
		return MergeResult{}, fmt.Errorf("capacity %d with offset %d and buffer %d: %w", destCapacity, dest.seg.offset, cap(dest.seg.data), ErrCapacityInvalid)
	}
	dest.seg.grow(destCapacity)

	var result MergeResult
	count := source.Count()
	for i := 0; i < count; i++ {
		src := source.slots.Get(i)
		record := source.record(src.offset)

		if j, ok := dest.slots.Find(src.key); ok {
			target := dest.record(dest.slots.Get(j).offset)
			var old Tuple
			if onKeyUpdated != nil {
				old = dest.tupleAt(j).Clone()
			}
			copy(target, record)
			result.Updated++
			if onKeyUpdated != nil {
				onKeyUpdated(src.key, dest.tupleAt(j), old)
			}
			continue
		}

		if updateExistingOnly {
			continue
		}

		offset, ok := dest.seg.allocate(dest.recordSize)
		if !ok {
			result.Dropped++
			dest.dropped++
			dest.recorder.WriteDropped("merge")
			dest.log.Debug("merge destination full, tuple dropped",
				zap.Uint32("key", src.key),
				zap.Int("capacity", destCapacity))
			continue
		}
		copy(dest.record(offset), record)
		if err := dest.slots.Append(slot{key: src.key, offset: offset}); err != nil {
			return result, err
		}
		result.Appended++
	}

	result.Size = dest.EndWrite()
	dest.recorder.MergeTuples(result.Updated, result.Appended, result.Dropped)
	return result, nil
}
