// Package sink has receivers that take routed messages out of the process:
// to Redis subscribers, or into an sqlite database.
package sink

import (
	"time"

	osc "github.com/pfcm/oscroute"
	"github.com/pfcm/oscroute/packet"
)

// Event is a message in a form that outlives its packet, and how sinks
// serialise messages as JSON.
type Event struct {
	Time    time.Time `json:"time"`
	Address string    `json:"address"`
	// Types is the message's type tag string, without the comma.
	Types string `json:"types"`
	Args  []any  `json:"args"`
}

// NewEvent copies m into an Event received at t.
func NewEvent(m *packet.Message, t time.Time) Event {
	e := Event{
		Time:    t,
		Address: m.Address,
		Types:   m.TypeTags()[1:],
		Args:    make([]any, len(m.Arguments)),
	}
	for i, a := range m.Arguments {
		v := osc.NativeValue(a)
		if b, ok := v.([]byte); ok {
			// Blobs alias the packet buffer.
			v = append([]byte(nil), b...)
		}
		e.Args[i] = v
	}
	return e
}
