// Package metrics records client operation counts and latencies with
// Prometheus. A nil *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

const namespace = "exchange"

// OutcomeOK labels a successful operation.
const OutcomeOK = "ok"

// Recorder holds the client's collectors.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them on reg. A nil reg
// returns a nil Recorder.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, nil
	}

	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Client operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Client operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if err := reg.Register(r.operations); err != nil {
		existing, rerr := existingCollector(err)
		if rerr != nil {
			return nil, rerr
		}
		r.operations = existing.(*prometheus.CounterVec)
	}
	if err := reg.Register(r.duration); err != nil {
		existing, rerr := existingCollector(err)
		if rerr != nil {
			return nil, rerr
		}
		r.duration = existing.(*prometheus.HistogramVec)
	}
	return r, nil
}

// existingCollector returns the collector already registered under the
// same descriptor, so several clients can share one registry.
func existingCollector(err error) (prometheus.Collector, error) {
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector, nil
	}
	return nil, err
}

// Observe records one operation that started at start and ended with err.
func (r *Recorder) Observe(operation string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, Outcome(err)).Inc()
	r.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Outcome returns the outcome label for err: "ok", the engine error kind,
// or "error".
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if k := errdefs.KindOf(err); k != errdefs.KindUnknown {
		return k.String()
	}
	return "error"
}
