package kv_settings

// Index maps record keys to positions. The tuple store keeps one alongside
// its ordered records so lookups do not walk the slice.
type Index[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V) error
	Delete(key K)
	Range(func(key K, value V))
	Len() int
}

// Recorder receives counters from the codec and the persistence store. The
// metrics package provides the Prometheus implementation.
type Recorder interface {
	// WriteDropped is called when a dictionary write or merge append does
	// not fit the remaining capacity.
	WriteDropped(op string)
	// ValueRejected is called when a text or byte value is too long for a slot.
	ValueRejected(op string)
	MergeTuples(updated, appended, dropped int)
	PersistWrite(kind string)
}

var _ Recorder = NopRecorder{}

type NopRecorder struct{}

func (NopRecorder) WriteDropped(string) {}
func (NopRecorder) ValueRejected(string) {}
func (NopRecorder) MergeTuples(int, int, int) {}
func (NopRecorder) PersistWrite(string) {}
