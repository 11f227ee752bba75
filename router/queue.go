package router

import (
	"sync"

	"github.com/pfcm/oscroute/packet"
)

// MessageQueue is a FIFO of messages from the router to one receiver. Push
// and Pop may be called from different goroutines. It is unbounded: a
// receiver that is never drained makes it grow without limit.
type MessageQueue struct {
	mu   sync.Mutex
	msgs []*packet.Message
	head int
}

// Push appends m to the tail of the queue.
func (q *MessageQueue) Push(m *packet.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, m)
}

// Pop removes and returns the head of the queue, or false if it's empty.
func (q *MessageQueue) Pop() (*packet.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.msgs) {
		return nil, false
	}
	m := q.msgs[q.head]
	q.msgs[q.head] = nil
	q.head++
	if q.head == len(q.msgs) {
		// Drained, start again at the front of the slice.
		q.msgs = q.msgs[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.msgs) {
		// Mostly consumed: shift down so the slice doesn't creep forever.
		n := copy(q.msgs, q.msgs[q.head:])
		clear(q.msgs[n:])
		q.msgs = q.msgs[:n]
		q.head = 0
	}
	return m, true
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) - q.head
}

// Clear drops every queued message, marking each one ready so its packet can
// still be reclaimed. It returns how many were dropped.
func (q *MessageQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.msgs[q.head:] {
		m.SetReady(true)
		n++
	}
	clear(q.msgs)
	q.msgs = q.msgs[:0]
	q.head = 0
	return n
}
