// Package dict implements the settings dictionary: a sequence of
// fixed-size (key, type, value) records laid out back to back in a
// caller-supplied buffer.
//
// A Dictionary is either being written (BeginWrite) or read (BeginRead).
// Both modes share the same lookup and iteration calls. Writes that do not
// fit the buffer are dropped and counted rather than returned as errors;
// values too large for a slot are rejected.
package dict

import (
	"encoding/binary"
	"fmt"
	"strings"

	"go.uber.org/zap"

	kv_settings "kv-settings"
	"kv-settings/tuple"
)

type slot struct {
	key    uint32
	offset int
}

func (s slot) RecordKey() uint32 {
	return s.key
}

type Dictionary struct {
	recordSize int
	seg        segment
	slots      *tuple.Store[slot]
	readIndex  int
	dropped    int
	log        *zap.Logger
	recorder   kv_settings.Recorder
}

type Option func(*Dictionary)

func WithRecordSize(size int) Option {
	return func(d *Dictionary) {
		d.recordSize = size
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(d *Dictionary) {
		d.log = log
	}
}

func WithRecorder(recorder kv_settings.Recorder) Option {
	return func(d *Dictionary) {
		d.recorder = recorder
	}
}

func New(opts ...Option) (*Dictionary, error) {
	d := &Dictionary{
		recordSize: DefaultRecordSize,
		log:        zap.NewNop(),
		recorder:   kv_settings.NopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.recordSize < MinRecordSize || d.recordSize > MaxRecordSize {
		return nil, fmt.Errorf("record size %d not in [%d, %d]: %w", d.recordSize, MinRecordSize, MaxRecordSize, ErrRecordSize)
	}
	d.slots = tuple.NewStore[slot](0)
	return d, nil
}

func (d *Dictionary) reset() {
	d.slots.Clear()
	d.seg.reset()
	d.readIndex = 0
	d.dropped = 0
}

// BeginWrite binds buf and empties the dictionary. A zero length buffer
// turns every later write into a no-op.
func (d *Dictionary) BeginWrite(buf []byte) {
	d.reset()
	d.seg.bind(buf, 0)
}

// EndWrite returns the number of bytes occupied by the written records.
func (d *Dictionary) EndWrite() int {
	return d.recordSize * d.slots.Count()
}

// Bytes returns the encoded records, ready to send.
func (d *Dictionary) Bytes() []byte {
	if d.seg.data == nil {
		return nil
	}
	return d.seg.data[:d.EndWrite()]
}

func (d *Dictionary) WriteInt32(key uint32, value int32) error {
	return d.writeRecord("write_int32", key, TypeInt, func(region []byte) {
		binary.LittleEndian.PutUint32(region, uint32(value))
	})
}

func (d *Dictionary) WriteUint32(key uint32, value uint32) error {
	return d.writeRecord("write_uint32", key, TypeUint, func(region []byte) {
		binary.LittleEndian.PutUint32(region, value)
	})
}

// WriteCString stores text with a NUL terminator. The text plus terminator
// must fit in the value region of a slot.
func (d *Dictionary) WriteCString(key uint32, text string) error {
	if d.seg.capacity == 0 {
		return nil
	}
	if strings.IndexByte(text, 0) >= 0 {
		return fmt.Errorf("write_cstring key %d: %w", key, ErrInvalidText)
	}
	if need := len(text) + 1; need > d.valueSize() {
		d.recorder.ValueRejected("write_cstring")
		return fmt.Errorf("write_cstring key %d: %d bytes into %d byte value region: %w", key, need, d.valueSize(), ErrOverflow)
	}
	return d.writeRecord("write_cstring", key, TypeCString, func(region []byte) {
		copy(region, text)
	})
}

func (d *Dictionary) WriteBytes(key uint32, data []byte) error {
	if d.seg.capacity == 0 {
		return nil
	}
	if need := len(data) + blobLengthBytes; need > d.valueSize() {
		d.recorder.ValueRejected("write_bytes")
		return fmt.Errorf("write_bytes key %d: %d bytes into %d byte value region: %w", key, need, d.valueSize(), ErrOverflow)
	}
	return d.writeRecord("write_bytes", key, TypeBytes, func(region []byte) {
		binary.LittleEndian.PutUint16(region, uint16(len(data)))
		copy(region[blobLengthBytes:], data)
	})
}

func (d *Dictionary) writeRecord(op string, key uint32, typ Type, fill func(region []byte)) error {
	if d.seg.capacity == 0 {
		return nil
	}
	if i, ok := d.slots.Find(key); ok {
		record := d.record(d.slots.Get(i).offset)
		putHeader(record, key, typ)
		fill(record[HeaderSize:])
		return nil
	}

	offset, ok := d.seg.allocate(d.recordSize)
	if !ok {
		d.dropped++
		d.recorder.WriteDropped(op)
		d.log.Debug("dictionary full, write dropped",
			zap.String("op", op),
			zap.Uint32("key", key),
			zap.Int("capacity", d.seg.capacity),
			zap.Int("offset", d.seg.offset))
		return nil
	}

	record := d.record(offset)
	putHeader(record, key, typ)
	fill(record[HeaderSize:])
	return d.slots.Append(slot{key: key, offset: offset})
}

// BeginRead empties the dictionary and indexes the records in buf without
// copying them. buf must hold a whole number of valid records with unique
// keys; otherwise ErrMalformedInput is returned and the dictionary stays
// empty.
func (d *Dictionary) BeginRead(buf []byte) error {
	d.reset()
	if len(buf)%d.recordSize != 0 {
		return fmt.Errorf("%d bytes is not a multiple of record size %d: %w", len(buf), d.recordSize, ErrMalformedInput)
	}

	d.seg.bind(buf, len(buf))
	for offset := 0; offset < len(buf); offset += d.recordSize {
		t, err := decodeRecord(buf[offset : offset+d.recordSize])
		if err != nil {
			d.reset()
			return fmt.Errorf("record %d: %w", offset/d.recordSize, err)
		}
		if err := d.slots.Append(slot{key: t.Key, offset: offset}); err != nil {
			d.reset()
			return fmt.Errorf("record %d: %w: %w", offset/d.recordSize, ErrMalformedInput, err)
		}
	}
	return nil
}

// ReadFirst restarts iteration and returns the first tuple.
func (d *Dictionary) ReadFirst() (Tuple, bool) {
	d.readIndex = 0
	return d.ReadNext()
}

func (d *Dictionary) ReadNext() (Tuple, bool) {
	if d.readIndex >= d.slots.Count() {
		return Tuple{}, false
	}
	t := d.tupleAt(d.readIndex)
	d.readIndex++
	return t, true
}

// Find looks key up without touching the read cursor.
func (d *Dictionary) Find(key uint32) (Tuple, bool) {
	i, ok := d.slots.Find(key)
	if !ok {
		return Tuple{}, false
	}
	return d.tupleAt(i), true
}

func (d *Dictionary) Count() int {
	return d.slots.Count()
}

func (d *Dictionary) Capacity() int {
	return d.seg.capacity
}

// Offset is where the next new record would be placed.
func (d *Dictionary) Offset() int {
	return d.seg.offset
}

func (d *Dictionary) Remaining() int {
	return d.seg.remaining()
}

// Dropped counts writes discarded for lack of space since the last begin call.
func (d *Dictionary) Dropped() int {
	return d.dropped
}

func (d *Dictionary) RecordSize() int {
	return d.recordSize
}

// MaxTextLen is the longest string WriteCString accepts.
func (d *Dictionary) MaxTextLen() int {
	return d.valueSize() - 1
}

// MaxBytesLen is the longest byte array WriteBytes accepts.
func (d *Dictionary) MaxBytesLen() int {
	return d.valueSize() - blobLengthBytes
}

func (d *Dictionary) valueSize() int {
	return d.recordSize - HeaderSize
}

func (d *Dictionary) record(offset int) []byte {
	return d.seg.data[offset : offset+d.recordSize]
}

func (d *Dictionary) tupleAt(i int) Tuple {
	// records were written by this package or validated by BeginRead
	t, _ := decodeRecord(d.record(d.slots.Get(i).offset))
	return t
}
