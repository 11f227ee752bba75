// Package replay feeds OSC traffic captured in pcap files back through a
// router, for testing receivers against recorded sessions.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
)

// Datagram is one captured UDP payload.
type Datagram struct {
	Time    time.Time
	SrcPort int
	DstPort int
	// Payload is only valid for the duration of the callback.
	Payload []byte
}

// Options controls a replay.
type Options struct {
	// Port only replays datagrams sent to this UDP port, if non-zero.
	Port int
	// Speed paces the replay relative to the capture's timestamps: 1 is
	// real time, 2 twice as fast. Zero replays as fast as possible.
	Speed float64
}

// Stats counts what a replay saw.
type Stats struct {
	// Packets counts every captured packet.
	Packets int
	// Datagrams counts UDP payloads passed to the callback.
	Datagrams int
}

// Replay reads a pcap stream from r and calls fn with each UDP payload that
// matches opts, in capture order. It stops at the end of the stream, when
// the context is cancelled, or at the first error from fn.
func Replay(ctx context.Context, r io.Reader, opts Options, fn func(Datagram) error) (Stats, error) {
	var stats Stats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("reading pcap header: %w", err)
	}
	var (
		first   time.Time
		started = time.Now()
	)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("reading packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.NoCopy)
		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		if opts.Speed > 0 {
			if first.IsZero() {
				first = ci.Timestamp
			}
			offset := time.Duration(float64(ci.Timestamp.Sub(first)) / opts.Speed)
			if err := sleepUntil(ctx, started.Add(offset)); err != nil {
				return stats, err
			}
		}

		stats.Datagrams++
		if err := fn(Datagram{
			Time:    ci.Timestamp,
			SrcPort: int(udp.SrcPort),
			DstPort: int(udp.DstPort),
			Payload: udp.Payload,
		}); err != nil {
			return stats, err
		}
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Route returns a callback for Replay which reads each datagram into a
// packet from pool and routes it through rt, the way a Listener would.
// Datagrams too large for the pool's packets are skipped, and ones that
// aren't valid OSC are routed as empty packets.
func Route(rt *router.Router, pool *packet.Pool) func(Datagram) error {
	return func(d Datagram) error {
		if len(d.Payload) > pool.PacketSize() {
			return nil
		}
		p := pool.Acquire()
		if err := p.Read(d.Payload); err == nil {
			rt.RoutePacket(p)
		}
		pool.Scrub()
		return nil
	}
}
