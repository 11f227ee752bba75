package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBufferFull is returned when a write would not fit in the writer's
	// buffer. The writer is left as it was before the failed call.
	ErrBufferFull = errors.New("osc: buffer full")
	// ErrWriterState is returned when calls to a Writer are out of order,
	// eg. an argument outside of a message.
	ErrWriterState = errors.New("osc: invalid writer state")
)

// Writer composes an OSC packet directly into a fixed capacity buffer,
// without building Message values first. A packet holds either exactly one
// message, or one bundle which can hold any number of messages and bundles:
//
//	w := osc.NewWriter(buf)
//	w.BeginBundle(osc.TimeTag{})
//	w.BeginMessage("/muse/0/eeg")
//	w.Arg(osc.AsFloat32(1.5))
//	w.EndMessage()
//	w.EndBundle()
//
// The writer never grows its buffer past the capacity it was given.
type Writer struct {
	buf   []byte
	limit int

	// offsets of the size prefix of each open bundle, or -1 for a bundle
	// at the top level which has no prefix.
	bundles []int
	// topLevel counts complete elements at the top level.
	topLevel int

	inMessage bool
	// msgSize is the offset of the open message's size prefix, or -1.
	msgSize  int
	argStart int
	tags     []byte
}

// NewWriter returns a Writer which appends to buf[:0] and never writes past
// cap(buf).
func NewWriter(buf []byte) *Writer {
	w := &Writer{}
	w.Reset(buf)
	return w
}

// Reset discards everything written and starts again on buf.
func (w *Writer) Reset(buf []byte) {
	w.buf = buf[:0]
	w.limit = cap(buf)
	w.bundles = w.bundles[:0]
	w.topLevel = 0
	w.inMessage = false
	w.tags = w.tags[:0]
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Open reports whether a message or bundle is still open.
func (w *Writer) Open() bool { return w.inMessage || len(w.bundles) > 0 }

// Complete reports whether the writer holds a whole packet: one element at
// the top level and nothing left open.
func (w *Writer) Complete() bool { return !w.Open() && w.topLevel == 1 }

// appendChecked appends with f, failing without side effects if the result
// would outgrow the buffer.
func (w *Writer) appendChecked(f func([]byte) []byte) error {
	b := f(w.buf)
	if len(b) > w.limit {
		// append had to reallocate, so w.buf is untouched.
		return ErrBufferFull
	}
	w.buf = b
	return nil
}

// beginElement reserves a size prefix if we're inside a bundle.
func (w *Writer) beginElement() (int, error) {
	if len(w.bundles) == 0 {
		if w.topLevel > 0 {
			return 0, fmt.Errorf("%w: packet already holds an element, use a bundle for more", ErrWriterState)
		}
		return -1, nil
	}
	at := len(w.buf)
	if err := w.appendChecked(func(b []byte) []byte { return append(b, 0, 0, 0, 0) }); err != nil {
		return 0, err
	}
	return at, nil
}

// endElement fills in the size prefix reserved by beginElement.
func (w *Writer) endElement(at int) {
	if at < 0 {
		w.topLevel++
		return
	}
	binary.BigEndian.PutUint32(w.buf[at:], uint32(len(w.buf)-at-4))
}

// BeginBundle opens a bundle with the given time tag. The zero TimeTag
// encodes as "immediately".
func (w *Writer) BeginBundle(t TimeTag) error {
	if w.inMessage {
		return fmt.Errorf("%w: bundle inside message", ErrWriterState)
	}
	start := len(w.buf)
	at, err := w.beginElement()
	if err != nil {
		return err
	}
	if err := w.appendChecked(func(b []byte) []byte {
		return t.Append(String(bundleTag).Append(b))
	}); err != nil {
		w.buf = w.buf[:start]
		return err
	}
	w.bundles = append(w.bundles, at)
	return nil
}

// EndBundle closes the innermost open bundle.
func (w *Writer) EndBundle() error {
	if w.inMessage || len(w.bundles) == 0 {
		return fmt.Errorf("%w: no bundle to end", ErrWriterState)
	}
	l := len(w.bundles) - 1
	at := w.bundles[l]
	w.bundles = w.bundles[:l]
	w.endElement(at)
	return nil
}

// BeginMessage opens a message to the given address. Arguments are added
// with Arg until EndMessage.
func (w *Writer) BeginMessage(address string) error {
	if w.inMessage {
		return fmt.Errorf("%w: message already open", ErrWriterState)
	}
	start := len(w.buf)
	at, err := w.beginElement()
	if err != nil {
		return err
	}
	if err := w.appendChecked(String(address).Append); err != nil {
		w.buf = w.buf[:start]
		return err
	}
	w.inMessage = true
	w.msgSize = at
	w.argStart = len(w.buf)
	w.tags = append(w.tags[:0], ',')
	return nil
}

// Arg appends an argument to the open message.
func (w *Writer) Arg(a Argument) error {
	if !w.inMessage {
		return fmt.Errorf("%w: argument outside message", ErrWriterState)
	}
	// Leave room for the type tag string, which is inserted at EndMessage.
	need := tagStringLen(len(w.tags) + 1)
	b := a.Append(w.buf)
	if len(b) > w.limit || len(b)+need > w.limit {
		return ErrBufferFull
	}
	w.buf = b
	w.tags = append(w.tags, byte(a.TypeTag()))
	return nil
}

// Args appends each argument in turn.
func (w *Writer) Args(args ...Argument) error {
	for _, a := range args {
		if err := w.Arg(a); err != nil {
			return err
		}
	}
	return nil
}

// EndMessage closes the open message, writing its type tag string in front
// of the arguments.
func (w *Writer) EndMessage() error {
	if !w.inMessage {
		return fmt.Errorf("%w: no message to end", ErrWriterState)
	}
	n := tagStringLen(len(w.tags))
	end := len(w.buf)
	if end+n > w.limit {
		return ErrBufferFull
	}
	w.buf = w.buf[:end+n]
	copy(w.buf[w.argStart+n:], w.buf[w.argStart:end])
	tt := w.buf[w.argStart : w.argStart+n]
	copy(tt, w.tags)
	clear(tt[len(w.tags):])
	w.inMessage = false
	w.endElement(w.msgSize)
	return nil
}

// WriteMessage writes a whole message.
func (w *Writer) WriteMessage(m *Message) error {
	if err := w.BeginMessage(m.Address); err != nil {
		return err
	}
	if err := w.Args(m.Arguments...); err != nil {
		return err
	}
	return w.EndMessage()
}

// tagStringLen is the encoded size of a type tag string of n characters.
func tagStringLen(n int) int {
	return n + 4 - n%4
}
