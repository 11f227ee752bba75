// package osc sends and receives Open Sound Control messages, per the
// OSC 1.0 spec (https://ccrma.stanford.edu/groups/osc/spec-1_0.html), with the
// additional types and bundles from OSC 1.1.
//
// The packet, router and server packages build a telemetry transport on top
// of this codec: received bytes are parsed into pooled packets, and messages
// are routed by address to per-receiver queues.
package osc

import (
	"net"
	"sync"

	"golang.org/x/exp/constraints"
)

// Send builds and sends a message using the provided arguments, to the given
// OSC address at the provided network address.
// TODO: not a great api?
func Send(conn net.PacketConn, netAddr, address string, args ...Argument) error {
	nAddr, err := net.ResolveUDPAddr("udp", netAddr)
	if err != nil {
		return err
	}
	msg := Message{
		Address:   address,
		Arguments: args,
	}
	b := getBuf()
	b = msg.Append(b)
	defer putBuf(b)
	_, err = conn.WriteTo(b, nAddr)
	return err
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 1024)
		return &b
	},
}

func getBuf() []byte {
	b := bufPool.Get().(*[]byte)
	return (*b)[:0]
}

func putBuf(b []byte) {
	bufPool.Put(&b)
}

func AsString(s string) *String {
	os := String(s)
	return &os
}

func AsInt32[T constraints.Integer](i T) *Int32 {
	ii := Int32(i)
	return &ii
}

func AsFloat32[T constraints.Float | constraints.Integer](f T) *Float32 {
	ff := Float32(f)
	return &ff
}
