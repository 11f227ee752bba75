package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
)

// Config configures a Link.
type Config struct {
	// Pool configures the pool of inbound packets. Its packet size is also
	// the largest frame accepted.
	Pool packet.PoolConfig
	// Logf receives diagnostics, it defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Link routes packets arriving on a serial port, and sends a router's
// outbound packets over it.
type Link struct {
	port   Port
	router *router.Router
	pool   *packet.Pool
	frames *FrameReader
	logf   func(string, ...any)

	wmu  sync.Mutex
	wbuf []byte

	received atomic.Uint64
	invalid  atomic.Uint64
	sent     atomic.Uint64
}

// NewLink returns a link between port and rt.
func NewLink(port Port, rt *router.Router, cfg Config) *Link {
	l := &Link{
		port:   port,
		router: rt,
		pool:   packet.NewPool(cfg.Pool),
		logf:   cfg.Logf,
	}
	if l.logf == nil {
		l.logf = log.Printf
	}
	l.frames = NewFrameReader(port, l.pool.PacketSize())
	return l
}

// Pool returns the pool inbound packets are read into.
func (l *Link) Pool() *packet.Pool { return l.pool }

// Run reads frames from the port and routes them until the port reaches
// EOF, which returns nil, or the context is cancelled, which closes the
// port. Processing the routed messages is up to the router's owner.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.port.Close() })
	defer stop()
	for {
		frame, err := l.frames.ReadFrame()
		switch {
		case errors.Is(err, ErrFrameTooLarge):
			l.invalid.Add(1)
			l.logf("Dropping serial frame: %v", err)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading serial port: %w", err)
		}
		l.received.Add(1)
		p := l.pool.Acquire()
		if err := p.Read(frame); err != nil {
			l.invalid.Add(1)
			l.logf("Received invalid packet over serial: %v", err)
		} else {
			l.router.RoutePacket(p)
		}
		l.pool.Scrub()
	}
}

// Send writes one packet to the port as a single frame.
func (l *Link) Send(p *packet.Packet) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.wbuf = AppendFrame(l.wbuf[:0], p.Bytes())
	if _, err := l.port.Write(l.wbuf); err != nil {
		return fmt.Errorf("writing serial port: %w", err)
	}
	l.sent.Add(1)
	return nil
}

// Flush sends every packet on the router's outbound queue, marking each
// ready once written. It stops at the first error; the packet that failed
// is dropped.
func (l *Link) Flush() (int, error) {
	n := 0
	for {
		p, ok := l.router.NextOutbound()
		if !ok {
			return n, nil
		}
		err := l.Send(p)
		p.SetAllReady(true)
		if err != nil {
			return n, err
		}
		n++
	}
}

// Stats counts a link's traffic.
type Stats struct {
	Received uint64
	// Invalid counts frames that were too large or not OSC.
	Invalid uint64
	Sent    uint64
	Pool    packet.PoolStats
}

// Stats returns the link's counters so far.
func (l *Link) Stats() Stats {
	return Stats{
		Received: l.received.Load(),
		Invalid:  l.invalid.Load(),
		Sent:     l.sent.Load(),
		Pool:     l.pool.Stats(),
	}
}
