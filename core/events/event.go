package events

// Event is anything the vault engine can announce. Implementations carry
// their payload internally and surface a stable type tag for routing.
type Event interface {
	EventType() string
}

// Emitter receives engine events. Implementations must not block: the
// engine emits while holding its state lock.
type Emitter interface {
	Emit(Event)
}

// Discard is the Emitter every engine starts with until a real sink is
// attached. It drops everything.
var Discard Emitter = discardEmitter{}

type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}
