package bus

import "time"

// Event is a store notification published on the bus. Kind is a dotted name
// ("conversations.updated", "messages.send_ack") so consumers can subscribe
// to a whole aggregate by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Now builds an event stamped with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
