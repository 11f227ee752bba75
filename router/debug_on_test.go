//go:build oscdebug

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pfcm/oscroute/packet"
)

func TestQueueOutboundPanicsOnUnwrittenPacket(t *testing.T) {
	rt := quietRouter(Config{Pool: packet.PoolConfig{Growth: 1}})
	p := rt.AcquireOutboundPacket()
	assert.PanicsWithError(t, "protocol state violation: queue outbound in state empty", func() { _ = rt.QueueOutbound(p) })
	assert.Zero(t, rt.OutboundLen())
}
