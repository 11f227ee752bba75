// Package router dispatches OSC messages to per-receiver queues.
//
// Decoded packets are handed to RoutePacket, which puts each message on the
// queue of the first receiver whose pattern matches its address (or the
// catch-all receiver's, or drops it). Once per tick the owner calls
// ProcessData, which drains every queue through its receiver's Handle and
// marks each message ready, letting the packet pool reclaim the packets.
//
// Nothing here blocks waiting for work: queues are polled each tick. Nor is
// there any backpressure: queues and the outbound pool grow without limit
// if nobody drains them.
//
// Locks are always taken in the order router, then queue, then packet; the
// outbound queue and the pool have their own locks which are never held
// together with the router's.
package router

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pfcm/oscroute/packet"
)

var (
	// ErrAlreadyRegistered is returned when registering a receiver twice.
	ErrAlreadyRegistered = errors.New("receiver already registered")
	// ErrNotRegistered is returned when unregistering an unknown receiver.
	ErrNotRegistered = errors.New("receiver not registered")
)

// Config configures a Router.
type Config struct {
	// Match selects how receiver patterns are compared to addresses.
	Match MatchMode
	// MaxDrainPerTick caps how many messages ProcessData hands each
	// receiver per call, bounding the length of a tick under bursts.
	// Zero means drain whatever was queued when the tick started.
	MaxDrainPerTick int
	// Pool configures the pool of outbound packets.
	Pool packet.PoolConfig
	// Logf receives diagnostics, it defaults to log.Printf.
	Logf func(format string, args ...any)
}

type binding struct {
	id       uuid.UUID
	receiver Receiver
	pattern  string
	match    func(string) bool
	queue    *MessageQueue
}

// Router routes messages from incoming packets to registered receivers, and
// holds the pool and queue of packets on their way out.
type Router struct {
	mode     MatchMode
	maxDrain int
	logf     func(string, ...any)

	mu       sync.Mutex
	bindings []*binding // in registration order
	catchAll *binding

	routed        atomic.Uint64
	unroutable    atomic.Uint64
	handled       atomic.Uint64
	handlerErrors atomic.Uint64

	pool     *packet.Pool
	outMu    sync.Mutex
	outbound []*packet.Packet
}

// New creates a router.
func New(cfg Config) *Router {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Router{
		mode:     cfg.Match,
		maxDrain: max(cfg.MaxDrainPerTick, 0),
		logf:     logf,
		pool:     packet.NewPool(cfg.Pool),
	}
}

// find returns the binding for r, if any. Callers hold mu.
func (rt *Router) find(r Receiver) (int, *binding) {
	for i, b := range rt.bindings {
		if b.receiver == r {
			return i, b
		}
	}
	if rt.catchAll != nil && rt.catchAll.receiver == r {
		return -1, rt.catchAll
	}
	return -1, nil
}

// Register adds a receiver for messages matching its pattern. Receivers are
// tried in the order they were registered, and the first match wins.
func (rt *Router) Register(r Receiver) error {
	pattern := r.Pattern()
	match, err := compile(rt.mode, pattern)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, b := rt.find(r); b != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, r)
	}
	rt.bindings = append(rt.bindings, &binding{
		id:       uuid.New(),
		receiver: r,
		pattern:  pattern,
		match:    match,
		queue:    new(MessageQueue),
	})
	return nil
}

// RegisterCatchAll makes r the receiver for messages no other receiver
// matches, regardless of r's pattern. Any previous catch-all receiver is
// unregistered, and messages still queued for it are dropped.
func (rt *Router) RegisterCatchAll(r Receiver) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.catchAll != nil && rt.catchAll.receiver == r {
		return nil
	}
	if _, b := rt.find(r); b != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, r)
	}
	if rt.catchAll != nil {
		if n := rt.catchAll.queue.Clear(); n > 0 {
			rt.logf("Replaced catch-all receiver dropped %d queued messages", n)
		}
	}
	rt.catchAll = &binding{
		id:       uuid.New(),
		receiver: r,
		pattern:  "*",
		match:    func(string) bool { return true },
		queue:    new(MessageQueue),
	}
	return nil
}

// Unregister removes a receiver. Messages still queued for it are marked
// ready and dropped, so their packets can be reclaimed.
func (rt *Router) Unregister(r Receiver) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	i, b := rt.find(r)
	if b == nil {
		return fmt.Errorf("%w: %v", ErrNotRegistered, r)
	}
	if b == rt.catchAll {
		rt.catchAll = nil
	} else {
		rt.bindings = append(rt.bindings[:i], rt.bindings[i+1:]...)
	}
	b.queue.Clear()
	return nil
}

// UnregisterAll removes every receiver, including the catch-all.
func (rt *Router) UnregisterAll() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, b := range rt.bindings {
		b.queue.Clear()
	}
	rt.bindings = nil
	if rt.catchAll != nil {
		rt.catchAll.queue.Clear()
		rt.catchAll = nil
	}
}

// Queue returns the queue of a registered receiver.
func (rt *Router) Queue(r Receiver) (*MessageQueue, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, b := rt.find(r); b != nil {
		return b.queue, true
	}
	return nil, false
}

// RoutePacket routes each of p's messages in order. Registrations can't
// change part way through a packet.
func (rt *Router) RoutePacket(p *packet.Packet) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	msgs := p.Messages()
	if len(msgs) == 0 {
		return
	}
	for _, m := range msgs {
		rt.routeMessage(m)
	}
}

// routeMessage queues m for the first matching receiver, or the catch-all.
// Unroutable messages are counted and marked ready straight away. Callers
// hold mu.
func (rt *Router) routeMessage(m *packet.Message) bool {
	var q *MessageQueue
	for _, b := range rt.bindings {
		if b.match(m.Address) {
			q = b.queue
			break
		}
	}
	if q == nil && rt.catchAll != nil {
		q = rt.catchAll.queue
	}
	if q == nil {
		rt.unroutable.Add(1)
		m.SetReady(true)
		return false
	}
	m.SetReady(false)
	q.Push(m)
	rt.routed.Add(1)
	return true
}

// ProcessData hands queued messages to their receivers, marking each one
// ready once handled. It should be called once per tick, from one goroutine.
// Each queue is drained of what it held when its turn came, up to
// MaxDrainPerTick; messages arriving meanwhile wait for the next tick.
// It returns the number of messages handled.
func (rt *Router) ProcessData() int {
	rt.mu.Lock()
	bs := make([]*binding, 0, len(rt.bindings)+1)
	bs = append(bs, rt.bindings...)
	if rt.catchAll != nil {
		bs = append(bs, rt.catchAll)
	}
	rt.mu.Unlock()

	n := 0
	for _, b := range bs {
		n += rt.drain(b)
	}
	return n
}

func (rt *Router) drain(b *binding) int {
	limit := b.queue.Len()
	if rt.maxDrain > 0 {
		limit = min(limit, rt.maxDrain)
	}
	n := 0
	for ; n < limit; n++ {
		m, ok := b.queue.Pop()
		if !ok {
			// Unregistered under us.
			break
		}
		if err := b.receiver.Handle(m); err != nil {
			rt.handlerErrors.Add(1)
			rt.logf("Error from receiver %q: %v (message: %v)", b.pattern, err, m)
		}
		m.SetReady(true)
	}
	rt.handled.Add(uint64(n))
	return n
}

// AcquireOutboundPacket returns an empty packet from the outbound pool for
// composing with BeginWrite and EndWrite.
func (rt *Router) AcquireOutboundPacket() *packet.Packet {
	return rt.pool.Acquire()
}

// QueueOutbound queues a composed packet for a transport to send.
func (rt *Router) QueueOutbound(p *packet.Packet) error {
	if s := p.State(); s != packet.Written {
		return packet.NewStateError("queue outbound", s, "")
	}
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	rt.outbound = append(rt.outbound, p)
	return nil
}

// NextOutbound takes the oldest queued outbound packet. Once it has been
// sent the transport should SetAllReady(true) on it so the pool can have it
// back.
func (rt *Router) NextOutbound() (*packet.Packet, bool) {
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	if len(rt.outbound) == 0 {
		return nil, false
	}
	p := rt.outbound[0]
	rt.outbound[0] = nil
	rt.outbound = rt.outbound[1:]
	if len(rt.outbound) == 0 {
		rt.outbound = nil
	}
	return p, true
}

// OutboundLen returns the number of packets waiting to be sent.
func (rt *Router) OutboundLen() int {
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	return len(rt.outbound)
}

// ScrubPool reclaims finished outbound packets, if enough of the pool is in
// use to be worth the scan. It returns how many were reclaimed.
func (rt *Router) ScrubPool() int {
	return rt.pool.Scrub()
}

// Pool returns the outbound packet pool.
func (rt *Router) Pool() *packet.Pool { return rt.pool }

// Close unregisters every receiver and destroys the outbound pool and queue.
func (rt *Router) Close() {
	rt.UnregisterAll()
	rt.outMu.Lock()
	rt.outbound = nil
	rt.outMu.Unlock()
	rt.pool.Clear()
}

// Stats is a snapshot of a router's counters.
type Stats struct {
	// Receivers counts registered receivers, including the catch-all.
	Receivers int
	CatchAll  bool
	// Routed and Unroutable count messages queued and dropped by
	// RoutePacket.
	Routed     uint64
	Unroutable uint64
	// Handled counts messages handed to receivers by ProcessData, and
	// HandlerErrors how many of those the receiver failed.
	Handled       uint64
	HandlerErrors uint64
	// Queued is the number of messages waiting across all queues.
	Queued   int
	Outbound int
	Pool     packet.PoolStats
}

// Stats returns the router's current statistics.
func (rt *Router) Stats() Stats {
	rt.mu.Lock()
	s := Stats{
		Receivers: len(rt.bindings),
		CatchAll:  rt.catchAll != nil,
	}
	for _, b := range rt.bindings {
		s.Queued += b.queue.Len()
	}
	if rt.catchAll != nil {
		s.Receivers++
		s.Queued += rt.catchAll.queue.Len()
	}
	rt.mu.Unlock()

	s.Routed = rt.routed.Load()
	s.Unroutable = rt.unroutable.Load()
	s.Handled = rt.handled.Load()
	s.HandlerErrors = rt.handlerErrors.Load()
	s.Outbound = rt.OutboundLen()
	s.Pool = rt.pool.Stats()
	return s
}

// NumReceivers returns the number of registered receivers, including the
// catch-all.
func (rt *Router) NumReceivers() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := len(rt.bindings)
	if rt.catchAll != nil {
		n++
	}
	return n
}

// Routed returns the number of messages queued for a receiver so far.
func (rt *Router) Routed() uint64 { return rt.routed.Load() }

// Unroutable returns the number of messages dropped for want of a receiver.
func (rt *Router) Unroutable() uint64 { return rt.unroutable.Load() }

// BindingInfo describes one registration.
type BindingInfo struct {
	ID       uuid.UUID
	Pattern  string
	CatchAll bool
	Queued   int
}

// Bindings lists the current registrations in routing order, the catch-all
// last.
func (rt *Router) Bindings() []BindingInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []BindingInfo
	for _, b := range rt.bindings {
		out = append(out, BindingInfo{ID: b.id, Pattern: b.pattern, Queued: b.queue.Len()})
	}
	if c := rt.catchAll; c != nil {
		out = append(out, BindingInfo{ID: c.id, Pattern: c.pattern, CatchAll: true, Queued: c.queue.Len()})
	}
	return out
}
