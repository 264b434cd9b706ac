package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"creditcore/core/events"
)

// Sink is an events.Emitter that counts committed engine events by type
// before forwarding them to the wrapped emitter. creditd installs it between
// the credit engine and any downstream consumer.
type Sink struct {
	next    events.Emitter
	emitted *prometheus.CounterVec
}

// NewSink registers the event counter with reg and returns the decorator.
// A nil next drops events after counting.
func NewSink(reg prometheus.Registerer, next events.Emitter) *Sink {
	emitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creditd",
		Subsystem: "engine",
		Name:      "events_total",
		Help:      "Committed engine events segmented by event type.",
	}, []string{"type"})
	if reg != nil {
		reg.MustRegister(emitted)
	}
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &Sink{next: next, emitted: emitted}
}

func (s *Sink) Emit(payload events.Payload) {
	if s == nil || payload == nil {
		return
	}
	s.emitted.WithLabelValues(payload.EventType()).Inc()
	s.next.Emit(payload)
}
