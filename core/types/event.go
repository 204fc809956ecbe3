package types

// Event is the engine's internal event payload: a type tag plus flat string
// attributes. The stream and indexer envelopes re-tag it with a sequence
// number before it leaves the process.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Normalize guarantees a non-nil attribute map so downstream encoders emit
// an empty object instead of null.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
}
