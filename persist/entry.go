package persist

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxBlobLength is the largest blob or string a single key may hold.
const MaxBlobLength = 256

var (
	ErrOverflow      = errors.New("value exceeds the maximum persisted length")
	ErrCorruptRecord = errors.New("journal record is corrupt")
	ErrClosed        = errors.New("store is closed")

	errTornTail = errors.New("incomplete record at end of journal")
)

type Kind uint8

const (
	KindInt Kind = iota + 1
	KindBlob
	// kindTombstone only appears in journals.
	kindTombstone
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBlob:
		return "blob"
	case kindTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Entry struct {
	Key  uint32
	Kind Kind
	Int  int32
	Blob []byte
}

func (e *Entry) RecordKey() uint32 {
	return e.Key
}

// Release drops the blob so the store no longer references it.
func (e *Entry) Release() {
	e.Blob = nil
}

func (e *Entry) setInt(value int32) {
	e.Release()
	e.Kind = KindInt
	e.Int = value
}

func (e *Entry) setBlob(data []byte) {
	e.Release()
	e.Kind = KindBlob
	e.Int = 0
	e.Blob = bytes.Clone(data)
	if e.Blob == nil {
		e.Blob = []byte{}
	}
}
