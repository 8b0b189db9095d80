package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ncw/directio"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	kv_settings "kv-settings"
)

const (
	keyEnableBackground uint32 = 1
	keyBackground       uint32 = 2
	keySlider           uint32 = 3
	keyEmail            uint32 = 4
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	store, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEmptyStoreDefaults(t *testing.T) {
	store := newTestStore(t)

	require.False(t, store.Exists(keyEnableBackground))
	require.False(t, store.ReadBool(keyEnableBackground))
	require.Equal(t, int32(0), store.ReadInt(keySlider))
	require.Equal(t, "", store.ReadString(keyEmail))

	buf := make([]byte, 8)
	require.Equal(t, 0, store.ReadBlob(keyEmail, buf))
}

func TestWriteReadInt(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteInt(keyBackground, 0xFF0000))
	require.True(t, store.Exists(keyBackground))
	require.Equal(t, int32(0xFF0000), store.ReadInt(keyBackground))

	require.NoError(t, store.WriteInt(keyBackground, 0x00FF00))
	require.Equal(t, int32(0x00FF00), store.ReadInt(keyBackground))
	require.Equal(t, 1, store.Count())
}

func TestWriteReadBlob(t *testing.T) {
	store := newTestStore(t)
	data := []byte("gregoire@test.fr")
	n, err := store.WriteBlob(keyEmail, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	// the store keeps its own copy
	data[0] = 'X'
	require.Equal(t, "gregoire@test.fr", store.ReadString(keyEmail))

	small := make([]byte, 4)
	require.Equal(t, 4, store.ReadBlob(keyEmail, small))
	require.Equal(t, []byte("greg"), small)

	_, err = store.WriteBlob(keyEmail, []byte(strings.Repeat("a", MaxBlobLength+1)))
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, "gregoire@test.fr", store.ReadString(keyEmail))
}

func TestKindReplacement(t *testing.T) {
	store := newTestStore(t)
	_, err := store.WriteString(keySlider, "1500")
	require.NoError(t, err)
	require.Equal(t, int32(0), store.ReadInt(keySlider))

	require.NoError(t, store.WriteInt(keySlider, 1500))
	require.Equal(t, int32(1500), store.ReadInt(keySlider))
	require.Equal(t, "", store.ReadString(keySlider))
	require.Equal(t, 1, store.Count())
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteBool(keyEnableBackground, true))
	require.NoError(t, store.WriteInt(keySlider, 3))
	require.NoError(t, store.Delete(keyEnableBackground))
	require.NoError(t, store.Delete(keyEnableBackground))

	require.False(t, store.Exists(keyEnableBackground))
	require.True(t, store.Exists(keySlider))
	require.Equal(t, 1, store.Count())
}

func TestResetClearsEverything(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteInt(keySlider, 1))
	_, err := store.WriteString(keyEmail, "a")
	require.NoError(t, err)

	require.NoError(t, store.Reset())
	require.Equal(t, 0, store.Count())
	require.False(t, store.Exists(keySlider))
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	store, err := New()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.ErrorIs(t, store.WriteInt(1, 1), ErrClosed)
	_, err = store.WriteBlob(1, nil)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, store.Close())
}

func openJournal(t *testing.T, path string) *FileJournal {
	t.Helper()
	journal, err := OpenFileJournal(path,
		WithClock(kv_settings.FixedClock{T: time.Unix(1700000000, 0)}),
		WithJournalLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return journal
}

func TestJournalSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.journal")

	store, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	require.NoError(t, store.WriteBool(keyEnableBackground, true))
	require.NoError(t, store.WriteInt(keyBackground, 0xFF0000))
	require.NoError(t, store.WriteInt(keySlider, 1000))
	require.NoError(t, store.WriteInt(keySlider, 1500))
	_, err = store.WriteString(keyEmail, "gone")
	require.NoError(t, err)
	require.NoError(t, store.Delete(keyEmail))
	require.NoError(t, store.Close())

	reloaded, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	defer reloaded.Close()

	require.True(t, reloaded.ReadBool(keyEnableBackground))
	require.Equal(t, int32(0xFF0000), reloaded.ReadInt(keyBackground))
	require.Equal(t, int32(1500), reloaded.ReadInt(keySlider))
	require.False(t, reloaded.Exists(keyEmail))
	require.Equal(t, 3, reloaded.Count())
}

func TestJournalResetTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.journal")

	store, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	require.NoError(t, store.WriteInt(keySlider, 1))
	require.NoError(t, store.Reset())
	require.NoError(t, store.WriteInt(keyBackground, 2))
	require.NoError(t, store.Close())

	reloaded, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	defer reloaded.Close()
	require.False(t, reloaded.Exists(keySlider))
	require.Equal(t, int32(2), reloaded.ReadInt(keyBackground))
}

func TestSnapshotRestore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteInt(keyBackground, 0xFFAA00))
	_, err := store.WriteString(keyEmail, "hello you")
	require.NoError(t, err)

	data, err := store.Snapshot()
	require.NoError(t, err)

	again, err := store.Snapshot()
	require.NoError(t, err)
	require.Equal(t, data, again)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	require.Contains(t, diag, "entries")

	restored := newTestStore(t)
	require.NoError(t, restored.Restore(data))
	require.Equal(t, int32(0xFFAA00), restored.ReadInt(keyBackground))
	require.Equal(t, "hello you", restored.ReadString(keyEmail))
}

func TestJournalDropsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.journal")

	store, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	require.NoError(t, store.WriteInt(keySlider, 1500))
	_, err = store.WriteString(keyEmail, "gregoire@test.fr")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	complete := info.Size()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = file.Write([]byte{recordMagic, 1, 2})
	require.NoError(t, err)
	require.NoError(t, file.Close())

	reloaded, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	require.Equal(t, int32(1500), reloaded.ReadInt(keySlider))
	require.Equal(t, "gregoire@test.fr", reloaded.ReadString(keyEmail))

	info, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, complete, info.Size())

	require.NoError(t, reloaded.WriteInt(keyBackground, 0xFF0000))
	require.NoError(t, reloaded.Close())

	again, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	defer again.Close()
	require.Equal(t, int32(0xFF0000), again.ReadInt(keyBackground))
	require.Equal(t, 3, again.Count())
}

func TestJournalRejectsCorruptMiddle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.journal")

	store, err := New(WithJournal(openJournal(t, path)))
	require.NoError(t, err)
	require.NoError(t, store.WriteInt(keySlider, 1500))
	require.NoError(t, store.WriteInt(keyBackground, 0xFF0000))
	require.NoError(t, store.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// first byte of the first record's value
	data[22] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	journal := openJournal(t, path)
	defer journal.Close()
	_, err = New(WithJournal(journal))
	require.ErrorIs(t, err, ErrCorruptRecord)
}

// openDirectJournal returns nil when the filesystem under dir refuses
// O_DIRECT, as tmpfs does. A tombstone for an unused key is written first
// since some filesystems accept the open and fail the write.
func openDirectJournal(t *testing.T, dir string) *FileJournal {
	t.Helper()
	journal, err := OpenFileJournal(filepath.Join(dir, "settings.journal"),
		WithDirectIO(true),
		WithJournalLogger(zaptest.NewLogger(t)))
	if err != nil {
		return nil
	}
	if err := journal.Append(Entry{Key: 0, Kind: kindTombstone}); err != nil {
		_ = journal.Close()
		return nil
	}
	return journal
}

func TestDirectJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	journal := openDirectJournal(t, dir)
	if journal == nil {
		local, err := os.MkdirTemp(".", "directio-")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(local) })
		dir = local
		journal = openDirectJournal(t, dir)
	}
	if journal == nil {
		t.Skip("O_DIRECT is not supported here")
	}

	store, err := New(WithJournal(journal))
	require.NoError(t, err)
	require.NoError(t, store.WriteInt(keySlider, 42))
	_, err = store.WriteString(keyEmail, "hello")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	path := filepath.Join(dir, "settings.journal")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(3*directio.BlockSize), info.Size())

	journal, err = OpenFileJournal(path, WithDirectIO(true))
	require.NoError(t, err)
	reloaded, err := New(WithJournal(journal))
	require.NoError(t, err)
	defer reloaded.Close()
	require.Equal(t, int32(42), reloaded.ReadInt(keySlider))
	require.Equal(t, "hello", reloaded.ReadString(keyEmail))
	require.Equal(t, 2, reloaded.Count())
}

type memJournal struct {
	entries     []Entry
	truncateErr error
}

func (m *memJournal) Append(e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) Load(method func(e Entry)) error {
	for _, e := range m.entries {
		method(e)
	}
	return nil
}

func (m *memJournal) Truncate() error {
	if m.truncateErr != nil {
		return m.truncateErr
	}
	m.entries = nil
	return nil
}

func (m *memJournal) Close() error {
	return nil
}

func TestResetKeepsEntriesWhenTruncateFails(t *testing.T) {
	journal := &memJournal{truncateErr: errors.New("disk unplugged")}
	store := newTestStore(t, WithJournal(journal))
	require.NoError(t, store.WriteInt(keySlider, 1500))

	require.Error(t, store.Reset())
	require.Equal(t, int32(1500), store.ReadInt(keySlider))

	reloaded := newTestStore(t, WithJournal(journal))
	require.Equal(t, int32(1500), reloaded.ReadInt(keySlider))

	journal.truncateErr = nil
	require.NoError(t, store.Reset())
	require.Zero(t, store.Count())
	require.Empty(t, journal.entries)
}
