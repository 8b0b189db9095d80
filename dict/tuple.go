package dict

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// Type is the tag stored in byte 4 of every record. The values match the
// historical wire tags so buffers from older senders decode unchanged.
type Type uint8

const (
	TypeBytes   Type = 0
	TypeCString Type = 1
	TypeUint    Type = 2
	TypeInt     Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeBytes:
		return "bytes"
	case TypeCString:
		return "cstring"
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	keyBytes        = 4
	tagBytes        = 1
	intBytes        = 4
	blobLengthBytes = 2

	// HeaderSize is the key plus the type tag at the front of every record.
	HeaderSize = keyBytes + tagBytes
	// DefaultRecordSize is the slot width used when no option overrides it.
	DefaultRecordSize = 64
	// MinRecordSize leaves room for an integer value.
	MinRecordSize = HeaderSize + intBytes
	// MaxRecordSize keeps the blob length prefix within 16 bits.
	MaxRecordSize = HeaderSize + blobLengthBytes + 0xFFFF
)

// Tuple is a decoded record. Value aliases the dictionary's buffer; use
// Clone to keep a copy past the next write or begin call.
type Tuple struct {
	Key   uint32
	Type  Type
	Value []byte
}

func (t Tuple) Int32() int32 {
	return int32(t.Uint32())
}

func (t Tuple) Uint32() uint32 {
	switch t.Type {
	case TypeInt, TypeUint:
		if len(t.Value) < intBytes {
			return 0
		}
		return binary.LittleEndian.Uint32(t.Value)
	case TypeCString:
		v, err := strconv.ParseInt(string(t.Value), 10, 64)
		if err != nil {
			return 0
		}
		return uint32(v)
	default:
		return 0
	}
}

// Bool is true for non-zero integers and for the strings "1" and "true".
func (t Tuple) Bool() bool {
	switch t.Type {
	case TypeInt, TypeUint:
		return t.Uint32() != 0
	case TypeCString:
		v, err := strconv.ParseBool(string(t.Value))
		return err == nil && v
	default:
		return false
	}
}

func (t Tuple) String() string {
	switch t.Type {
	case TypeInt:
		return strconv.FormatInt(int64(t.Int32()), 10)
	case TypeUint:
		return strconv.FormatUint(uint64(t.Uint32()), 10)
	default:
		return string(t.Value)
	}
}

func (t Tuple) Bytes() []byte {
	return t.Value
}

func (t Tuple) Clone() Tuple {
	return Tuple{
		Key:   t.Key,
		Type:  t.Type,
		Value: bytes.Clone(t.Value),
	}
}

func putHeader(record []byte, key uint32, typ Type) {
	binary.LittleEndian.PutUint32(record[:keyBytes], key)
	record[keyBytes] = byte(typ)
	clear(record[HeaderSize:])
}

func decodeRecord(record []byte) (Tuple, error) {
	t := Tuple{
		Key:  binary.LittleEndian.Uint32(record[:keyBytes]),
		Type: Type(record[keyBytes]),
	}
	region := record[HeaderSize:]

	switch t.Type {
	case TypeInt, TypeUint:
		t.Value = region[:intBytes:intBytes]
	case TypeCString:
		end := bytes.IndexByte(region, 0)
		if end < 0 {
			return Tuple{}, fmt.Errorf("key %d: unterminated string: %w", t.Key, ErrMalformedInput)
		}
		t.Value = region[:end:end]
	case TypeBytes:
		n := int(binary.LittleEndian.Uint16(region))
		if n > len(region)-blobLengthBytes {
			return Tuple{}, fmt.Errorf("key %d: blob length %d exceeds slot: %w", t.Key, n, ErrMalformedInput)
		}
		end := blobLengthBytes + n
		t.Value = region[blobLengthBytes:end:end]
	default:
		return Tuple{}, fmt.Errorf("key %d: unknown tag %d: %w", t.Key, uint8(t.Type), ErrMalformedInput)
	}
	return t, nil
}
