// Package packet holds fixed capacity OSC packets and the pool they are
// allocated from.
//
// A Packet is either filled by reading received bytes, which are parsed into
// messages, or composed in place with an osc.Writer for sending. Each message
// carries a ready flag; consumers set it once they are done with the message,
// and the Pool takes a packet back once every one of its messages is ready.
// Nothing is ever freed explicitly.
package packet

import (
	"fmt"
	"sync"
	"sync/atomic"

	osc "github.com/pfcm/oscroute"
)

// DefaultSize is the capacity of a packet, in bytes, unless configured
// otherwise.
const DefaultSize = 1024

// State is where a packet is in its lifecycle.
//
//	Empty --BeginWrite--> Writing --EndWrite--> Written --Clear--> Empty
//	Empty --Read--> Read --Clear--> Empty
//	Empty, Writing --Discard--> Discarded --Clear--> Empty
//
// Discarded marks a packet its producer has given up on. It holds nothing,
// and its pool reclaims it like any finished packet.
type State int

const (
	Empty State = iota
	Writing
	Written
	Read
	Discarded
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Writing:
		return "writing"
	case Written:
		return "written"
	case Read:
		return "read"
	case Discarded:
		return "discarded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Message is a message held by a packet. It is only valid until the packet is
// cleared, which the pool does once the message and all its siblings are
// ready.
type Message struct {
	osc.Message

	ready  atomic.Bool
	packet *Packet
}

// Ready reports whether consumers are finished with the message.
func (m *Message) Ready() bool { return m.ready.Load() }

// SetReady marks the message as finished with (or, with false, in flight).
func (m *Message) SetReady(ready bool) { m.ready.Store(ready) }

// Packet returns the packet the message belongs to.
func (m *Message) Packet() *Packet { return m.packet }

func (m *Message) String() string {
	return fmt.Sprintf("%s %v", m.Address, m.Arguments)
}

// Packet is a fixed capacity buffer of OSC data and the messages parsed from
// it. It is safe for concurrent use, although in practice one goroutine
// fills it and others only look at its messages.
type Packet struct {
	mu    sync.Mutex
	buf   []byte // len(buf) == capacity
	n     int
	state State
	w     osc.Writer

	msgs  []*Message
	store []Message

	// Set by the owning pool.
	slot, gen uint32
}

// New returns an empty packet that can hold size bytes.
func New(size int) *Packet {
	return &Packet{buf: make([]byte, size)}
}

// Cap returns the number of bytes the packet can hold.
func (p *Packet) Cap() int { return len(p.buf) }

// State returns the packet's current state.
func (p *Packet) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Handle returns the generation checked handle of the packet's pool slot.
func (p *Packet) Handle() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Handle{Slot: p.slot, Gen: p.gen}
}

// Read copies b into the packet and parses it into messages. The packet must
// be Empty. A packet that fails to parse still moves to Read, holding no
// messages, so that its pool can reclaim it.
func (p *Packet) Read(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Empty {
		return stateError("read", p.state, "")
	}
	if len(b) > len(p.buf) {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrTooLarge, len(b), len(p.buf))
	}
	p.n = copy(p.buf, b)
	p.state = Read
	if err := p.parse(); err != nil {
		return fmt.Errorf("parsing packet: %w", err)
	}
	return nil
}

// parse fills in the message list from the first n bytes of the buffer.
func (p *Packet) parse() error {
	p.msgs = p.msgs[:0]
	e, err := osc.ParsePacket(p.buf[:p.n])
	if err != nil {
		return err
	}
	parsed := osc.Flatten(e)
	if cap(p.store) < len(parsed) {
		p.store = make([]Message, len(parsed))
	}
	p.store = p.store[:len(parsed)]
	for i, om := range parsed {
		m := &p.store[i]
		m.Message = *om
		m.ready.Store(false)
		m.packet = p
		p.msgs = append(p.msgs, m)
	}
	return nil
}

// BeginWrite starts composing the packet. The returned writer appends
// straight into the packet's buffer and is only valid until EndWrite.
func (p *Packet) BeginWrite() (*osc.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Empty {
		return nil, stateError("begin write", p.state, "")
	}
	p.w.Reset(p.buf[:0])
	p.state = Writing
	return &p.w, nil
}

// EndWrite finishes composing the packet, after which its messages can be
// inspected and its bytes sent.
func (p *Packet) EndWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Writing {
		return stateError("end write", p.state, "")
	}
	if p.w.Open() {
		return stateError("end write", p.state, "message or bundle still open")
	}
	if !p.w.Complete() {
		return stateError("end write", p.state, "nothing written")
	}
	p.n = p.w.Len()
	p.state = Written
	if err := p.parse(); err != nil {
		return fmt.Errorf("parsing composed packet: %w", err)
	}
	return nil
}

// AbortWrite throws away a composition in progress. The packet ends up
// Discarded, so a pooled packet goes back to the free set on the next
// release, and a standalone one needs a Clear before reuse. Unlike Discard
// it is only allowed while Writing.
func (p *Packet) AbortWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Writing {
		return stateError("abort write", p.state, "")
	}
	p.discard()
	return nil
}

// Discard gives up on a packet that was acquired but never filled, or whose
// composition failed. It is allowed while Empty or Writing.
func (p *Packet) Discard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Empty && p.state != Writing {
		return stateError("discard", p.state, "")
	}
	p.discard()
	return nil
}

func (p *Packet) discard() {
	p.reset()
	p.state = Discarded
}

// Clear empties the packet, invalidating its messages. It refuses to clear a
// packet that is being written, since that would lose the writer's data.
func (p *Packet) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Writing {
		return stateError("clear", p.state, "")
	}
	p.reset()
	return nil
}

func (p *Packet) reset() {
	p.n = 0
	p.state = Empty
	clear(p.msgs)
	p.msgs = p.msgs[:0]
	p.w.Reset(p.buf[:0])
}

// Bytes returns the packet's data. It is empty unless the packet is Read or
// Written.
func (p *Packet) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf[:p.n]
}

// Len returns the number of messages in the packet.
func (p *Packet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

// Message returns the i'th message in the packet.
func (p *Packet) Message(i int) *Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[i]
}

// Messages returns the packet's messages, in packet order. The slice must not
// be modified.
func (p *Packet) Messages() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs
}

// SetAllReady sets the ready flag of every message, for when a packet is done
// with as a whole, such as after sending it.
func (p *Packet) SetAllReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.msgs {
		m.SetReady(ready)
	}
}

// AllReady reports whether every message in the packet is ready. It is true
// for a packet with no messages.
func (p *Packet) AllReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allReady()
}

func (p *Packet) allReady() bool {
	for _, m := range p.msgs {
		if !m.Ready() {
			return false
		}
	}
	return true
}

// reclaimable reports whether the pool may take the packet back. Packets
// that were just acquired, or are being written, belong to their producer
// even though they hold no unready messages.
func (p *Packet) reclaimable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Discarded:
		return true
	case Read, Written:
		return p.allReady()
	}
	return false
}
