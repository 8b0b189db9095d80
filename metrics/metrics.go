// Package metrics exports codec and persistence counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	kv_settings "kv-settings"
)

const namespace = "kvsettings"

var _ kv_settings.Recorder = new(Recorder)

type Recorder struct {
	writesDropped  *prometheus.CounterVec
	valuesRejected *prometheus.CounterVec
	mergeTuples    *prometheus.CounterVec
	persistWrites  *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		writesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dict",
			Name:      "writes_dropped_total",
			Help:      "Dictionary writes discarded because the buffer was full.",
		}, []string{"op"}),
		valuesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dict",
			Name:      "values_rejected_total",
			Help:      "Text or byte values too long for a record slot.",
		}, []string{"op"}),
		mergeTuples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "tuples_total",
			Help:      "Tuples handled by dictionary merges, by outcome.",
		}, []string{"result"}),
		persistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "writes_total",
			Help:      "Writes to the persistence store, by value kind.",
		}, []string{"kind"}),
	}

	for _, collector := range []prometheus.Collector{r.writesDropped, r.valuesRejected, r.mergeTuples, r.persistWrites} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) WriteDropped(op string) {
	r.writesDropped.WithLabelValues(op).Inc()
}

func (r *Recorder) ValueRejected(op string) {
	r.valuesRejected.WithLabelValues(op).Inc()
}

func (r *Recorder) MergeTuples(updated, appended, dropped int) {
	for result, n := range map[string]int{"updated": updated, "appended": appended, "dropped": dropped} {
		if n > 0 {
			r.mergeTuples.WithLabelValues(result).Add(float64(n))
		}
	}
}

func (r *Recorder) PersistWrite(kind string) {
	r.persistWrites.WithLabelValues(kind).Inc()
}
