// Package settings keeps an application's configuration values in step
// with the messages carrying them and with the persistence store.
//
// A Manager is built from a Clay configuration schema. Init restores each
// value from the store (or its schema default), HandleInbound applies a
// received message, and Deinit writes everything back. The store outlives
// any number of Init/Deinit cycles.
package settings

import (
	"fmt"

	"go.uber.org/zap"

	kv_settings "kv-settings"
	"kv-settings/dict"
	"kv-settings/persist"
)

type value struct {
	bools []bool
	i     int32
	s     string
}

// InboxHandler runs after a received message has been applied.
type InboxHandler func(received *dict.Dictionary)

type Manager struct {
	schema     *Schema
	store      *persist.Store
	values     []value
	handlers   []InboxHandler
	recordSize int
	log        *zap.Logger
	recorder   kv_settings.Recorder
}

type Option func(*Manager)

func WithRecordSize(size int) Option {
	return func(m *Manager) {
		m.recordSize = size
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

func WithRecorder(recorder kv_settings.Recorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// NewManager returns a manager holding schema defaults. Call Init to load
// saved values.
func NewManager(schema *Schema, store *persist.Store, opts ...Option) *Manager {
	m := &Manager{
		schema:     schema,
		store:      store,
		recordSize: dict.DefaultRecordSize,
		log:        zap.NewNop(),
		recorder:   kv_settings.NopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.values = make([]value, len(schema.Settings))
	for i := range schema.Settings {
		m.values[i] = defaultValue(schema.Settings[i])
	}
	return m
}

func defaultValue(setting Setting) value {
	return value{
		bools: append([]bool(nil), setting.DefaultBools...),
		i:     setting.DefaultInt,
		s:     setting.DefaultString,
	}
}

func (m *Manager) Schema() *Schema {
	return m.schema
}

// Init loads every setting from the store, falling back to the schema
// default for keys never saved.
func (m *Manager) Init() error {
	restored := 0
	for i, setting := range m.schema.Settings {
		v := defaultValue(setting)
		for element, key := range setting.Keys() {
			if !m.store.Exists(key) {
				continue
			}
			restored++
			switch setting.Kind {
			case KindBool:
				v.bools[element] = m.store.ReadBool(key)
			case KindInt:
				v.i = m.store.ReadInt(key)
			case KindString:
				v.s = m.store.ReadString(key)
			}
		}
		m.values[i] = v
	}
	m.log.Debug("settings initialised",
		zap.Int("settings", len(m.schema.Settings)),
		zap.Int("restored_keys", restored))
	return nil
}

// Deinit saves every setting to the store. Handlers stay registered.
func (m *Manager) Deinit() error {
	for i, setting := range m.schema.Settings {
		v := m.values[i]
		for element, key := range setting.Keys() {
			var err error
			switch setting.Kind {
			case KindBool:
				err = m.store.WriteBool(key, v.bools[element])
			case KindInt:
				err = m.store.WriteInt(key, v.i)
			case KindString:
				_, err = m.store.WriteString(key, v.s)
			}
			if err != nil {
				return fmt.Errorf("saving %s: %w", setting.Name, err)
			}
		}
	}
	return nil
}

// OnInboxReceived registers a handler run after every applied message.
func (m *Manager) OnInboxReceived(handler InboxHandler) {
	m.handlers = append(m.handlers, handler)
}

// HandleInbound decodes a received message and applies it.
func (m *Manager) HandleInbound(buf []byte) (dict.MergeResult, error) {
	received, err := m.newDictionary()
	if err != nil {
		return dict.MergeResult{}, err
	}
	if err := received.BeginRead(buf); err != nil {
		return dict.MergeResult{}, fmt.Errorf("decoding inbound message: %w", err)
	}
	return m.Reconcile(received)
}

// Reconcile merges received over the current values. Keys the schema does
// not know are ignored.
func (m *Manager) Reconcile(received *dict.Dictionary) (dict.MergeResult, error) {
	current, err := m.encode()
	if err != nil {
		return dict.MergeResult{}, err
	}

	var updated []dict.Tuple
	result, err := dict.Merge(current, current.Capacity(), received, true, func(key uint32, newTuple, _ dict.Tuple) {
		updated = append(updated, newTuple.Clone())
	})
	if err != nil {
		return result, fmt.Errorf("merging inbound message: %w", err)
	}

	for _, t := range updated {
		m.apply(t)
	}
	m.log.Debug("inbound settings applied",
		zap.Int("received", received.Count()),
		zap.Int("updated", result.Updated))

	for _, handler := range m.handlers {
		handler(received)
	}
	return result, nil
}

func (m *Manager) apply(t dict.Tuple) {
	ref, ok := m.schema.byKey[t.Key]
	if !ok {
		return
	}
	setting := m.schema.Settings[ref.setting]
	v := &m.values[ref.setting]
	switch setting.Kind {
	case KindBool:
		v.bools[ref.element] = t.Bool()
	case KindInt:
		v.i = t.Int32()
	case KindString:
		v.s = t.String()
	}
}

// Outbound encodes the current values as a message.
func (m *Manager) Outbound() ([]byte, error) {
	d, err := m.encode()
	if err != nil {
		return nil, err
	}
	return d.Bytes(), nil
}

func (m *Manager) newDictionary() (*dict.Dictionary, error) {
	return dict.New(
		dict.WithRecordSize(m.recordSize),
		dict.WithLogger(m.log),
		dict.WithRecorder(m.recorder))
}

func (m *Manager) encode() (*dict.Dictionary, error) {
	d, err := m.newDictionary()
	if err != nil {
		return nil, err
	}
	keys := 0
	for _, setting := range m.schema.Settings {
		keys += setting.Count
	}
	d.BeginWrite(make([]byte, keys*m.recordSize))

	for i, setting := range m.schema.Settings {
		v := m.values[i]
		for element, key := range setting.Keys() {
			switch setting.Kind {
			case KindBool:
				var b int32
				if v.bools[element] {
					b = 1
				}
				err = d.WriteInt32(key, b)
			case KindInt:
				err = d.WriteInt32(key, v.i)
			case KindString:
				err = d.WriteCString(key, v.s)
				if err != nil {
					m.log.Debug("setting too long for a record, sent empty",
						zap.String("setting", setting.Name),
						zap.Error(err))
					err = d.WriteCString(key, "")
				}
			}
			if err != nil {
				return nil, fmt.Errorf("encoding %s: %w", setting.Name, err)
			}
		}
	}
	d.EndWrite()
	return d, nil
}

func (m *Manager) index(name string, kind Kind) (int, bool) {
	i, ok := m.schema.byName[name]
	if !ok || m.schema.Settings[i].Kind != kind {
		return 0, false
	}
	return i, true
}

// Bool returns a toggle, or the first box of a checkbox group. Unknown
// names read as false.
func (m *Manager) Bool(name string) bool {
	return m.Checked(name, 0)
}

// Checked returns box index of a checkbox group.
func (m *Manager) Checked(name string, index int) bool {
	i, ok := m.index(name, KindBool)
	if !ok || index < 0 || index >= len(m.values[i].bools) {
		return false
	}
	return m.values[i].bools[index]
}

func (m *Manager) Int(name string) int32 {
	i, ok := m.index(name, KindInt)
	if !ok {
		return 0
	}
	return m.values[i].i
}

func (m *Manager) String(name string) string {
	i, ok := m.index(name, KindString)
	if !ok {
		return ""
	}
	return m.values[i].s
}

// Value returns a setting as bool, []bool (checkbox groups), int32 or string.
func (m *Manager) Value(name string) (any, error) {
	i, ok := m.schema.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownSetting)
	}
	setting := m.schema.Settings[i]
	v := m.values[i]
	switch {
	case setting.Kind == KindBool && setting.Count == 1:
		return v.bools[0], nil
	case setting.Kind == KindBool:
		return append([]bool(nil), v.bools...), nil
	case setting.Kind == KindInt:
		return v.i, nil
	default:
		return v.s, nil
	}
}
