package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// SLIP special bytes, from RFC 1055.
const (
	frameEnd     = 0xC0
	frameEsc     = 0xDB
	frameEscEnd  = 0xDC
	frameEscEsc  = 0xDD
	defaultLimit = 1 << 16
)

// ErrFrameTooLarge is returned by FrameReader.ReadFrame for a frame longer
// than the reader's limit. The frame is skipped, so reading can carry on.
var ErrFrameTooLarge = errors.New("slip frame too large")

// AppendFrame appends payload to dst as a SLIP frame. Following OSC 1.1 the
// frame both starts and ends with END, so a receiver that joins mid-stream
// only loses the frame in progress.
func AppendFrame(dst, payload []byte) []byte {
	dst = append(dst, frameEnd)
	for _, b := range payload {
		switch b {
		case frameEnd:
			dst = append(dst, frameEsc, frameEscEnd)
		case frameEsc:
			dst = append(dst, frameEsc, frameEscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return append(dst, frameEnd)
}

// FrameReader splits a byte stream into SLIP frames.
type FrameReader struct {
	r     *bufio.Reader
	limit int
	buf   []byte
}

// NewFrameReader returns a reader of frames up to limit bytes long after
// unescaping. A limit of zero means 64KiB.
func NewFrameReader(r io.Reader, limit int) *FrameReader {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &FrameReader{r: bufio.NewReader(r), limit: limit}
}

// ReadFrame returns the next non-empty frame. The returned slice is only
// valid until the next call. At the end of the stream it returns io.EOF,
// dropping any unterminated frame.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	f.buf = f.buf[:0]
	var (
		escaped bool
		tooBig  bool
	)
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == frameEnd {
			switch {
			case tooBig:
				return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, f.limit)
			case len(f.buf) == 0:
				// Back to back ENDs delimit nothing.
				escaped = false
				continue
			}
			return f.buf, nil
		}
		if escaped {
			escaped = false
			switch b {
			case frameEscEnd:
				b = frameEnd
			case frameEscEsc:
				b = frameEsc
			}
			// Anything else is a protocol violation, RFC 1055 says to
			// keep the byte as is.
		} else if b == frameEsc {
			escaped = true
			continue
		}
		if len(f.buf) >= f.limit {
			tooBig = true
			continue
		}
		f.buf = append(f.buf, b)
	}
}
