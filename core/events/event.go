package events

import "sync"

// Event is the wire form of a state change broadcast to subscribers
// (gateway streams, indexers).
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Payload is a structured state change that renders itself as an Event.
type Payload interface {
	EventType() string
	Event() *Event
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Payload)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default when a component does not wire an emitter.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Payload) {}

// Recorder retains emitted events in order. Used by tests and local tooling.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(p Payload) {
	if p == nil {
		return
	}
	evt := p.Event()
	if evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// Replay re-emits every recorded event to the target, in order. The credit
// engine buffers per-transaction events in a Recorder and replays them only
// after the transaction commits.
func (r *Recorder) Replay(target Emitter) {
	if target == nil {
		return
	}
	for _, evt := range r.Events() {
		target.Emit(Raw{E: evt})
	}
}

// Raw adapts an already rendered Event back into a Payload.
type Raw struct {
	E *Event
}

// EventType satisfies the Payload interface.
func (r Raw) EventType() string {
	if r.E == nil {
		return ""
	}
	return r.E.Type
}

// Event satisfies the Payload interface.
func (r Raw) Event() *Event { return r.E }

// ByType filters the recorded events.
func (r *Recorder) ByType(eventType string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
