package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// recordMagic starts every journal record. A zero byte where a record
// should start is block padding written in direct I/O mode.
const recordMagic byte = 0xA5

type dataRecord struct {
	Magic     byte
	Timestamp int64
	CRC       uint32
	Key       uint32
	Kind      Kind
	ValueSize uint32
	Value     []byte
}

func newDataRecord(time time.Time, e Entry) *dataRecord {
	var value []byte
	switch e.Kind {
	case KindInt:
		value = binary.LittleEndian.AppendUint32(nil, uint32(e.Int))
	case KindBlob:
		value = e.Blob
	}
	return &dataRecord{
		Magic:     recordMagic,
		Timestamp: time.UnixNano(),
		CRC:       checksum(e.Key, e.Kind, value),
		Key:       e.Key,
		Kind:      e.Kind,
		ValueSize: uint32(len(value)),
		Value:     value,
	}
}

func checksum(key uint32, kind Kind, value []byte) uint32 {
	hasher := crc32.NewIEEE()
	var header [5]byte
	binary.LittleEndian.PutUint32(header[:4], key)
	header[4] = byte(kind)
	// hash.Hash writes never fail
	_, _ = hasher.Write(header[:])
	_, _ = hasher.Write(value)
	return hasher.Sum32()
}

func (d *dataRecord) VerifyChecksum() error {
	if d == nil {
		return nil
	}
	if checksum(d.Key, d.Kind, d.Value) != d.CRC {
		return errors.New("invalid checksum")
	}
	return nil
}

func (d *dataRecord) entry() (Entry, error) {
	e := Entry{Key: d.Key, Kind: d.Kind}
	switch d.Kind {
	case KindInt:
		if len(d.Value) != 4 {
			return Entry{}, fmt.Errorf("int record with %d value bytes", len(d.Value))
		}
		e.Int = int32(binary.LittleEndian.Uint32(d.Value))
	case KindBlob:
		e.Blob = d.Value
	case kindTombstone:
	default:
		return Entry{}, fmt.Errorf("unknown kind %d", uint8(d.Kind))
	}
	return e, nil
}

// UnmarshalBinary decodes the record at the front of data and returns how
// many bytes it used.
func (d *dataRecord) UnmarshalBinary(data []byte) (int, error) {
	readBuffer := bytes.NewReader(data)

	read := func(field any) func() error {
		return func() error {
			return binary.Read(readBuffer, binary.LittleEndian, field)
		}
	}

	readQueue := []func() error{
		read(&d.Magic),
		func() error {
			if d.Magic != recordMagic {
				return fmt.Errorf("bad magic %#x", d.Magic)
			}
			return nil
		},
		read(&d.Timestamp),
		read(&d.CRC),
		read(&d.Key),
		read(&d.Kind),
		read(&d.ValueSize),
		func() error {
			if d.ValueSize > MaxBlobLength {
				return fmt.Errorf("value size %d over limit", d.ValueSize)
			}
			valueBytes := make([]byte, d.ValueSize)
			if _, err := io.ReadFull(readBuffer, valueBytes); err != nil {
				return fmt.Errorf("value of %d bytes: %w", d.ValueSize, err)
			}
			d.Value = valueBytes
			return nil
		},
	}

	for _, op := range readQueue {
		err := op()
		if err != nil {
			return 0, err
		}
	}
	return len(data) - readBuffer.Len(), nil
}

func (d *dataRecord) MarshalBinary() ([]byte, error) {
	writeBuffer := new(bytes.Buffer)

	write := func(data any) func() error {
		return func() error {
			return binary.Write(writeBuffer, binary.LittleEndian, data)
		}
	}

	writeQueue := []func() error{
		write(d.Magic),
		write(d.Timestamp),
		write(d.CRC),
		write(d.Key),
		write(d.Kind),
		write(d.ValueSize),
		func() error {
			writeBuffer.Write(d.Value)
			return nil
		},
	}

	for _, op := range writeQueue {
		err := op()
		if err != nil {
			return nil, err
		}
	}

	return writeBuffer.Bytes(), nil
}
