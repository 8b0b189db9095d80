package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ncw/directio"
	"go.uber.org/zap"

	kv_settings "kv-settings"
)

// Journal is the durable side of a Store: every write is appended, and Load
// replays the writes in order when a store is created.
type Journal interface {
	io.Closer
	Append(e Entry) error
	Load(func(e Entry)) error
	Truncate() error
}

var _ Journal = new(FileJournal)

// FileJournal is an append-only data file of checksummed records.
type FileJournal struct {
	path     string
	writer   *os.File
	lock     sync.Mutex
	clock    kv_settings.Clock
	directIO bool
	log      *zap.Logger
}

type JournalOption func(*FileJournal)

// WithDirectIO opens the data file with O_DIRECT. Each record is written as
// whole zero-padded blocks from an aligned buffer.
func WithDirectIO(enabled bool) JournalOption {
	return func(j *FileJournal) {
		j.directIO = enabled
	}
}

func WithClock(clock kv_settings.Clock) JournalOption {
	return func(j *FileJournal) {
		j.clock = clock
	}
}

func WithJournalLogger(log *zap.Logger) JournalOption {
	return func(j *FileJournal) {
		j.log = log
	}
}

func OpenFileJournal(path string, opts ...JournalOption) (*FileJournal, error) {
	j := &FileJournal{
		path:  path,
		clock: kv_settings.NewRealClock(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}

	var writeFile *os.File
	var err error
	if j.directIO {
		writeFile, err = directio.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		writeFile, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	j.writer = writeFile
	return j, nil
}

func (j *FileJournal) Path() string {
	return j.path
}

func (j *FileJournal) Append(e Entry) error {
	// perform any marshalling outside the critical section to keep it small
	record, err := newDataRecord(j.clock.Now(), e).MarshalBinary()
	if err != nil {
		return err
	}
	if j.directIO {
		record = padToBlocks(record)
	}

	j.lock.Lock()
	defer j.lock.Unlock()
	if j.writer == nil {
		return ErrClosed
	}
	if _, err := j.writer.Write(record); err != nil {
		return err
	}
	return j.writer.Sync()
}

// padToBlocks copies record into a block aligned buffer, zero filled up to
// the next block boundary.
func padToBlocks(record []byte) []byte {
	blocks := (len(record) + directio.BlockSize - 1) / directio.BlockSize
	aligned := directio.AlignedBlock(blocks * directio.BlockSize)
	copy(aligned, record)
	return aligned
}

// Load replays the journal. An incomplete record at the end of the file,
// as left by a crash during Append, is cut off and the records before it
// are kept. Corruption anywhere else is returned as ErrCorruptRecord.
func (j *FileJournal) Load(method func(e Entry)) error {
	j.lock.Lock()
	defer j.lock.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		return fmt.Errorf("reading journal %s: %w", j.path, err)
	}
	count, end, err := replay(data, method)
	if errors.Is(err, errTornTail) {
		j.log.Warn("discarding incomplete journal tail",
			zap.String("path", j.path),
			zap.Int("records", count),
			zap.Int("discarded_bytes", len(data)-end),
			zap.Error(err))
		if j.writer == nil {
			return ErrClosed
		}
		if err := j.writer.Truncate(int64(end)); err != nil {
			return fmt.Errorf("truncating journal %s to %d bytes: %w", j.path, end, err)
		}
		return j.writer.Sync()
	}
	if err != nil {
		j.log.Warn("journal replay stopped",
			zap.String("path", j.path),
			zap.Int("records", count),
			zap.Error(err))
		return err
	}
	j.log.Debug("journal replayed", zap.String("path", j.path), zap.Int("records", count))
	return nil
}

// replay decodes records from data and returns how many were applied and
// the offset just past the last good one. Zero bytes where a record should
// start are block padding and are skipped.
func replay(data []byte, method func(e Entry)) (int, int, error) {
	count := 0
	offset := 0
	for offset < len(data) {
		if data[offset] == 0 {
			offset = (offset/directio.BlockSize + 1) * directio.BlockSize
			continue
		}

		record := dataRecord{}
		n, err := record.UnmarshalBinary(data[offset:])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return count, offset, fmt.Errorf("offset %d: %w: %w: %v", offset, ErrCorruptRecord, errTornTail, err)
		}
		if err != nil {
			return count, offset, fmt.Errorf("offset %d: %w: %v", offset, ErrCorruptRecord, err)
		}
		if err := record.VerifyChecksum(); err != nil {
			if zeroFilled(data[offset+n:]) {
				return count, offset, fmt.Errorf("offset %d key %d: %w: %w: %v", offset, record.Key, ErrCorruptRecord, errTornTail, err)
			}
			return count, offset, fmt.Errorf("offset %d key %d: %w: %v", offset, record.Key, ErrCorruptRecord, err)
		}
		e, err := record.entry()
		if err != nil {
			return count, offset, fmt.Errorf("offset %d key %d: %w: %v", offset, record.Key, ErrCorruptRecord, err)
		}
		method(e)
		count++
		offset += n
	}
	return count, min(offset, len(data)), nil
}

func zeroFilled(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (j *FileJournal) Truncate() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.writer == nil {
		return ErrClosed
	}
	if err := j.writer.Truncate(0); err != nil {
		return err
	}
	return j.writer.Sync()
}

func (j *FileJournal) Close() error {
	if j == nil {
		return nil
	}
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.writer == nil {
		return nil
	}
	err := j.writer.Close()
	j.writer = nil
	return err
}
