// Package server moves OSC packets between a UDP connection and a router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
)

const (
	// DefaultTick is how often a Listener drains the router's queues.
	DefaultTick = 10 * time.Millisecond
	// readTimeout bounds how long a read blocks before the loop checks
	// whether it has been cancelled.
	readTimeout = 100 * time.Millisecond
)

// Config configures a Listener.
type Config struct {
	// Tick is the period of the processing loop, DefaultTick if zero.
	Tick time.Duration
	// Dest is where the router's outbound packets are sent. If nil they
	// are left queued for someone else to send.
	Dest net.Addr
	// Pool configures the pool of inbound packets. Datagrams larger than
	// its packet size are dropped.
	Pool packet.PoolConfig
	// Logf receives diagnostics, it defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Listener reads packets from a connection and routes them, and runs the
// tick that hands them to receivers. Receivers are only ever called from
// the tick goroutine.
type Listener struct {
	conn   net.PacketConn
	router *router.Router
	pool   *packet.Pool
	tick   time.Duration
	dest   net.Addr
	logf   func(string, ...any)

	received atomic.Uint64
	dropped  atomic.Uint64
	invalid  atomic.Uint64
	sent     atomic.Uint64
}

// NewListener returns a listener routing packets read from conn to rt.
func NewListener(conn net.PacketConn, rt *router.Router, cfg Config) *Listener {
	l := &Listener{
		conn:   conn,
		router: rt,
		pool:   packet.NewPool(cfg.Pool),
		tick:   cfg.Tick,
		dest:   cfg.Dest,
		logf:   cfg.Logf,
	}
	if l.tick <= 0 {
		l.tick = DefaultTick
	}
	if l.logf == nil {
		l.logf = log.Printf
	}
	return l
}

// Pool returns the pool inbound packets are read into.
func (l *Listener) Pool() *packet.Pool { return l.pool }

// Addr returns the address the listener is reading from.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// receive routes one datagram.
func (l *Listener) receive(b []byte, from net.Addr) {
	l.received.Add(1)
	if len(b) > l.pool.PacketSize() {
		l.dropped.Add(1)
		l.logf("Dropping %d byte packet from %v: larger than %d", len(b), from, l.pool.PacketSize())
		return
	}
	p := l.pool.Acquire()
	if err := p.Read(b); err != nil {
		// The packet has no messages and will be reclaimed on the next
		// scrub.
		l.invalid.Add(1)
		l.logf("Received invalid packet from %v: %v", from, err)
		return
	}
	l.router.RoutePacket(p)
}

// Tick does one round of processing: it hands queued messages to their
// receivers, sends outbound packets, and reclaims finished packets from
// both pools. Serve calls it periodically; it must not be called
// concurrently with itself.
func (l *Listener) Tick() int {
	n := l.router.ProcessData()
	if l.dest != nil {
		sent, err := FlushOutbound(l.conn, l.dest, l.router)
		l.sent.Add(uint64(sent))
		if err != nil {
			l.logf("Error sending to %v: %v", l.dest, err)
		}
	}
	l.router.ScrubPool()
	l.pool.Scrub()
	return n
}

// Serve reads packets and runs the tick until the context is cancelled or
// the connection fails. It always returns a non-nil error.
func (l *Listener) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 1<<16) // ~max UDP packet size.
		for {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := l.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				return fmt.Errorf("setting read deadline: %w", err)
			}
			n, addr, err := l.conn.ReadFrom(buf)
			if n > 0 {
				l.receive(buf[:n], addr)
			}
			if err != nil {
				var nerr net.Error
				if errors.As(err, &nerr) && nerr.Timeout() {
					continue
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return err
			}
		}
	})
	g.Go(func() error {
		t := time.NewTicker(l.tick)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.C:
				l.Tick()
			}
		}
	})
	return g.Wait()
}

// Stats counts a listener's traffic.
type Stats struct {
	// Received counts datagrams read, including those then dropped.
	Received uint64
	// Dropped counts datagrams too large for the pool's packets.
	Dropped uint64
	// Invalid counts datagrams that weren't valid OSC.
	Invalid uint64
	// Sent counts outbound packets sent to the destination.
	Sent uint64
	Pool packet.PoolStats
}

// Stats returns the listener's counters so far.
func (l *Listener) Stats() Stats {
	return Stats{
		Received: l.received.Load(),
		Dropped:  l.dropped.Load(),
		Invalid:  l.invalid.Load(),
		Sent:     l.sent.Load(),
		Pool:     l.pool.Stats(),
	}
}

// FlushOutbound sends every packet queued on rt's outbound queue to dest,
// marking each one's messages ready once written so the pool can reclaim
// it. Packets that fail to send are not retried. It returns how many were
// sent, and the first error.
func FlushOutbound(conn net.PacketConn, dest net.Addr, rt *router.Router) (int, error) {
	var (
		sent     int
		firstErr error
	)
	for {
		p, ok := rt.NextOutbound()
		if !ok {
			return sent, firstErr
		}
		if _, err := conn.WriteTo(p.Bytes(), dest); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			sent++
		}
		p.SetAllReady(true)
	}
}
