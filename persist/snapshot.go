package persist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so equal stores produce equal
// snapshots.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("persist: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("persist: CBOR decoder initialization failed: " + err.Error())
	}
}

type snapshotEntry struct {
	Key  uint32 `cbor:"1,keyasint"`
	Kind Kind   `cbor:"2,keyasint"`
	Int  int32  `cbor:"3,keyasint,omitempty"`
	Blob []byte `cbor:"4,keyasint,omitempty"`
}

type snapshot struct {
	Version int             `cbor:"version"`
	Entries []snapshotEntry `cbor:"entries"`
}

const snapshotVersion = 1

// Snapshot encodes every entry, in first-write order, as CBOR.
func (s *Store) Snapshot() ([]byte, error) {
	snap := snapshot{Version: snapshotVersion, Entries: make([]snapshotEntry, 0, s.Count())}
	s.Range(func(e Entry) bool {
		snap.Entries = append(snap.Entries, snapshotEntry{Key: e.Key, Kind: e.Kind, Int: e.Int, Blob: e.Blob})
		return true
	})
	return encMode.Marshal(snap)
}

// Restore writes every entry of a snapshot into the store. Existing keys not
// in the snapshot are kept.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	for _, e := range snap.Entries {
		switch e.Kind {
		case KindInt:
			if err := s.WriteInt(e.Key, e.Int); err != nil {
				return err
			}
		case KindBlob:
			if _, err := s.WriteBlob(e.Key, e.Blob); err != nil {
				return err
			}
		default:
			return fmt.Errorf("snapshot key %d: unknown kind %d", e.Key, uint8(e.Kind))
		}
	}
	return nil
}

// Diagnose renders a snapshot in CBOR diagnostic notation.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
