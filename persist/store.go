// Package persist is the durable key/value store behind saved settings.
//
// Entries are integers or byte blobs addressed by a uint32 key. The store
// lives as long as the process holds it; attaching a Journal makes it
// survive process restarts too. Init/deinit cycles of the settings layer
// never clear it; only Reset does.
package persist

import (
	"fmt"

	"go.uber.org/zap"

	kv_settings "kv-settings"
	"kv-settings/tuple"
)

type Store struct {
	entries  *tuple.Store[*Entry]
	journal  Journal
	log      *zap.Logger
	recorder kv_settings.Recorder
	closed   bool
}

type Option func(*Store)

// WithJournal replays journal into the new store and records every later
// write to it.
func WithJournal(journal Journal) Option {
	return func(s *Store) {
		s.journal = journal
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

func WithRecorder(recorder kv_settings.Recorder) Option {
	return func(s *Store) {
		s.recorder = recorder
	}
}

func New(opts ...Option) (*Store, error) {
	s := &Store{
		entries:  tuple.NewStore[*Entry](16),
		log:      zap.NewNop(),
		recorder: kv_settings.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal == nil {
		return s, nil
	}

	replayed := 0
	err := s.journal.Load(func(e Entry) {
		replayed++
		if e.Kind == kindTombstone {
			s.remove(e.Key)
			return
		}
		s.put(e.Key).assign(e)
	})
	if err != nil {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}
	s.log.Info("persist store loaded",
		zap.Int("records", replayed),
		zap.Int("entries", s.entries.Count()))
	return s, nil
}

func (e *Entry) assign(from Entry) {
	switch from.Kind {
	case KindInt:
		e.setInt(from.Int)
	case KindBlob:
		e.setBlob(from.Blob)
	}
}

func (s *Store) Exists(key uint32) bool {
	_, ok := s.entries.Find(key)
	return ok
}

func (s *Store) lookup(key uint32) (*Entry, bool) {
	i, ok := s.entries.Find(key)
	if !ok {
		return nil, false
	}
	return s.entries.Get(i), true
}

// ReadInt returns 0 when key is absent or holds a blob.
func (s *Store) ReadInt(key uint32) int32 {
	e, ok := s.lookup(key)
	if !ok || e.Kind != KindInt {
		return 0
	}
	return e.Int
}

func (s *Store) ReadBool(key uint32) bool {
	return s.ReadInt(key) != 0
}

// ReadBlob copies the blob for key into into and returns the number of bytes
// copied, 0 when key is absent or holds an integer.
func (s *Store) ReadBlob(key uint32, into []byte) int {
	e, ok := s.lookup(key)
	if !ok || e.Kind != KindBlob {
		return 0
	}
	return copy(into, e.Blob)
}

// ReadString returns the blob for key up to its first NUL, "" when absent.
func (s *Store) ReadString(key uint32) string {
	e, ok := s.lookup(key)
	if !ok || e.Kind != KindBlob {
		return ""
	}
	for i, b := range e.Blob {
		if b == 0 {
			return string(e.Blob[:i])
		}
	}
	return string(e.Blob)
}

func (s *Store) WriteInt(key uint32, value int32) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.appendJournal(Entry{Key: key, Kind: KindInt, Int: value}); err != nil {
		return err
	}
	s.put(key).setInt(value)
	s.recorder.PersistWrite(KindInt.String())
	return nil
}

func (s *Store) WriteBool(key uint32, value bool) error {
	var v int32
	if value {
		v = 1
	}
	return s.WriteInt(key, v)
}

// WriteBlob replaces whatever key held with a copy of data.
func (s *Store) WriteBlob(key uint32, data []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(data) > MaxBlobLength {
		return 0, fmt.Errorf("key %d: %d bytes, limit %d: %w", key, len(data), MaxBlobLength, ErrOverflow)
	}
	if err := s.appendJournal(Entry{Key: key, Kind: KindBlob, Blob: data}); err != nil {
		return 0, err
	}
	s.put(key).setBlob(data)
	s.recorder.PersistWrite(KindBlob.String())
	return len(data), nil
}

func (s *Store) WriteString(key uint32, value string) (int, error) {
	return s.WriteBlob(key, []byte(value))
}

func (s *Store) Delete(key uint32) error {
	if s.closed {
		return ErrClosed
	}
	if !s.Exists(key) {
		return nil
	}
	if err := s.appendJournal(Entry{Key: key, Kind: kindTombstone}); err != nil {
		return err
	}
	s.remove(key)
	return nil
}

func (s *Store) Count() int {
	return s.entries.Count()
}

// Range visits entries in first-write order. The entry must not be kept.
func (s *Store) Range(method func(e Entry) bool) {
	s.entries.Range(func(_ int, e *Entry) bool {
		return method(*e)
	})
}

// Reset drops every entry and truncates the journal.
func (s *Store) Reset() error {
	if s.closed {
		return ErrClosed
	}
	if s.journal != nil {
		if err := s.journal.Truncate(); err != nil {
			return fmt.Errorf("truncating journal: %w", err)
		}
	}
	s.releaseAll()
	s.log.Debug("persist store reset")
	return nil
}

// Close releases all entries and closes the journal. The store is unusable
// afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseAll()
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

func (s *Store) put(key uint32) *Entry {
	if e, ok := s.lookup(key); ok {
		return e
	}
	e := &Entry{Key: key}
	// the key was just looked up, Append cannot see a duplicate
	_ = s.entries.Append(e)
	return e
}

func (s *Store) remove(key uint32) {
	if i, ok := s.entries.Find(key); ok {
		s.entries.Remove(i)
	}
}

func (s *Store) releaseAll() {
	s.entries.Range(func(_ int, e *Entry) bool {
		e.Release()
		return true
	})
	s.entries.Clear()
}

func (s *Store) appendJournal(e Entry) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Append(e); err != nil {
		return fmt.Errorf("journal key %d: %w", e.Key, err)
	}
	return nil
}
