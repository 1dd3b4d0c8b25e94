package events

import "time"

// Kind discriminates delta types so consumers can switch without type
// assertions.
type Kind string

// Event is one normalized delta from a generation stream or voice session.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by every delta. Timestamps record arrival
// on the client, not emission on the backend.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
