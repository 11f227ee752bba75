package packet

import (
	"fmt"
	"sync"
)

const (
	// DefaultGrowth is how many packets a pool adds when it runs out.
	DefaultGrowth = 128
	// DefaultScrubRatio is the share of a pool's packets that may be in use
	// before Scrub bothers looking for packets to take back.
	DefaultScrubRatio = 0.10
)

// PoolConfig configures a Pool. Zero fields take their defaults.
type PoolConfig struct {
	// PacketSize is the capacity of each packet in bytes.
	PacketSize int
	// Growth is how many packets are added when Acquire finds none free.
	Growth int
	// Initial is how many packets to allocate up front.
	Initial int
	// ScrubRatio is the used/total ratio above which Scrub releases
	// processed packets.
	ScrubRatio float64
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.PacketSize <= 0 {
		c.PacketSize = DefaultSize
	}
	if c.Growth <= 0 {
		c.Growth = DefaultGrowth
	}
	if c.Initial < 0 {
		c.Initial = 0
	}
	if c.ScrubRatio <= 0 {
		c.ScrubRatio = DefaultScrubRatio
	}
	return c
}

// Handle identifies a pool slot. Handles go stale when their slot's packet is
// destroyed, so a Handle can be checked long after the packet it named has
// gone.
type Handle struct {
	Slot uint32
	Gen  uint32
}

// PoolStats is a snapshot of a pool's partition.
type PoolStats struct {
	Total int
	Free  int
	Used  int
}

type slotState uint8

const (
	slotVacant slotState = iota
	slotFree
	slotUsed
)

type slot struct {
	p     *Packet
	gen   uint32
	state slotState
}

// Pool hands out fixed size packets and takes them back once every message
// in them is ready. Every packet is either free or used, never both.
//
// The pool grows by a fixed number of packets whenever Acquire finds none
// free, without limit: a consumer that never marks its messages ready makes
// the pool grow forever. It only shrinks through Resize.
type Pool struct {
	cfg PoolConfig

	mu     sync.Mutex
	slots  []slot
	free   []uint32 // stack, top is the next packet handed out
	used   []uint32
	vacant []uint32 // destroyed slots, reused before the slab grows
}

// NewPool creates a pool, allocating cfg.Initial packets.
func NewPool(cfg PoolConfig) *Pool {
	pl := &Pool{cfg: cfg.withDefaults()}
	pl.grow(pl.cfg.Initial)
	return pl
}

// PacketSize returns the capacity of the pool's packets.
func (pl *Pool) PacketSize() int { return pl.cfg.PacketSize }

// grow adds n free packets. Callers hold mu.
func (pl *Pool) grow(n int) {
	for range n {
		var i uint32
		if l := len(pl.vacant); l > 0 {
			i, pl.vacant = pl.vacant[l-1], pl.vacant[:l-1]
		} else {
			i = uint32(len(pl.slots))
			pl.slots = append(pl.slots, slot{})
		}
		s := &pl.slots[i]
		s.gen++
		s.p = New(pl.cfg.PacketSize)
		s.p.slot, s.p.gen = i, s.gen
		s.state = slotFree
		pl.free = append(pl.free, i)
	}
}

// destroy drops the packet in slot i, which must not be in either list.
func (pl *Pool) destroy(i uint32) {
	s := &pl.slots[i]
	s.p = nil
	s.gen++
	s.state = slotVacant
	pl.vacant = append(pl.vacant, i)
}

// Acquire takes a free packet, growing the pool first if there are none. The
// packet is Empty.
func (pl *Pool) Acquire() *Packet {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if len(pl.free) == 0 {
		pl.grow(pl.cfg.Growth)
	}
	l := len(pl.free) - 1
	i := pl.free[l]
	pl.free = pl.free[:l]
	pl.slots[i].state = slotUsed
	pl.used = append(pl.used, i)
	return pl.slots[i].p
}

// ReleaseProcessed moves every used packet whose messages are all ready back
// to the free set, clearing it on the way, along with any packet its producer
// discarded. Packets still Empty or Writing are left with their producer. It returns the number of packets released.
func (pl *Pool) ReleaseProcessed() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.releaseProcessed()
}

func (pl *Pool) releaseProcessed() int {
	released := 0
	for j := len(pl.used) - 1; j >= 0; j-- {
		i := pl.used[j]
		s := &pl.slots[i]
		if !s.p.reclaimable() {
			continue
		}
		// Can't fail: reclaimable packets aren't being written.
		_ = s.p.Clear()
		last := len(pl.used) - 1
		pl.used[j] = pl.used[last]
		pl.used = pl.used[:last]
		s.state = slotFree
		pl.free = append(pl.free, i)
		released++
	}
	return released
}

// NeedsScrub reports whether more than the configured share of packets are
// in use.
func (pl *Pool) NeedsScrub() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.needsScrub()
}

func (pl *Pool) needsScrub() bool {
	total := len(pl.free) + len(pl.used)
	return float64(len(pl.used)) > pl.cfg.ScrubRatio*float64(total)
}

// Scrub releases processed packets if NeedsScrub, so that it can be called
// every tick without scanning the used set every time.
func (pl *Pool) Scrub() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if !pl.needsScrub() {
		return 0
	}
	return pl.releaseProcessed()
}

// Resize changes the number of packets to n. Growing adds free packets;
// shrinking only ever destroys free packets, and shrinking to fewer packets
// than are in use is refused.
func (pl *Pool) Resize(n int) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if n < 0 {
		return stateError("resize", Empty, fmt.Sprintf("negative size %d", n))
	}
	total := len(pl.free) + len(pl.used)
	switch {
	case n > total:
		pl.grow(n - total)
	case n < total:
		if n < len(pl.used) {
			return stateError("resize", Empty,
				fmt.Sprintf("cannot shrink to %d packets with %d in use", n, len(pl.used)))
		}
		for range total - n {
			l := len(pl.free) - 1
			i := pl.free[l]
			pl.free = pl.free[:l]
			pl.destroy(i)
		}
	}
	return nil
}

// Clear destroys every packet, used or not. Messages in used packets stay
// readable by whoever still holds them, but the pool forgets them.
func (pl *Pool) Clear() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for _, i := range pl.free {
		pl.destroy(i)
	}
	for _, i := range pl.used {
		pl.destroy(i)
	}
	pl.free = pl.free[:0]
	pl.used = pl.used[:0]
}

// Lookup returns the packet named by h, if it still exists.
func (pl *Pool) Lookup(h Handle) (*Packet, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if int(h.Slot) >= len(pl.slots) {
		return nil, false
	}
	s := pl.slots[h.Slot]
	if s.state == slotVacant || s.gen != h.Gen {
		return nil, false
	}
	return s.p, true
}

// InUse reports whether the packet named by h is currently in the used set.
func (pl *Pool) InUse(h Handle) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if int(h.Slot) >= len(pl.slots) {
		return false
	}
	s := pl.slots[h.Slot]
	return s.state == slotUsed && s.gen == h.Gen
}

// Stats returns the current partition sizes.
func (pl *Pool) Stats() PoolStats {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return PoolStats{
		Total: len(pl.free) + len(pl.used),
		Free:  len(pl.free),
		Used:  len(pl.used),
	}
}
