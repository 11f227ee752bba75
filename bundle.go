package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// bundleTag is the OSC string that starts every bundle.
const bundleTag = "#bundle"

// Element is the content of an OSC packet: either a *Message or a *Bundle.
type Element interface {
	// Append encodes the element and appends it to the provided slice.
	Append([]byte) []byte
}

// Bundle is an OSC bundle, a time tag and a sequence of elements which may
// themselves be bundles.
type Bundle struct {
	Time     TimeTag
	Elements []Element
}

// Append encodes the bundle and appends it to the provided slice.
func (b Bundle) Append(buf []byte) []byte {
	buf = String(bundleTag).Append(buf)
	buf = b.Time.Append(buf)
	for _, e := range b.Elements {
		// Elements are prefixed with their size, which we only know once
		// they're encoded.
		at := len(buf)
		buf = append(buf, 0, 0, 0, 0)
		buf = e.Append(buf)
		binary.BigEndian.PutUint32(buf[at:], uint32(len(buf)-at-4))
	}
	return buf
}

// isBundle reports whether buf holds an encoded bundle.
func isBundle(buf []byte) bool {
	return len(buf) >= 8 && bytes.Equal(buf[:8], []byte(bundleTag+"\x00"))
}

// ParseBundle parses a bundle.
func ParseBundle(buf []byte) (*Bundle, error) {
	if !isBundle(buf) {
		return nil, fmt.Errorf("not a bundle: %q", buf[:min(8, len(buf))])
	}
	b := &Bundle{}
	buf, err := b.Time.Consume(buf[8:])
	if err != nil {
		return nil, fmt.Errorf("reading bundle time tag: %w", err)
	}
	for i := 0; len(buf) > 0; i++ {
		if len(buf) < 4 {
			return nil, fmt.Errorf("element %d: expect size, only %d bytes", i, len(buf))
		}
		size := int(binary.BigEndian.Uint32(buf))
		buf = buf[4:]
		if size > len(buf) || size%4 != 0 {
			return nil, fmt.Errorf("element %d: invalid size %d (%d bytes remain)", i, size, len(buf))
		}
		e, err := ParsePacket(buf[:size])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		b.Elements = append(b.Elements, e)
		buf = buf[size:]
	}
	return b, nil
}

// ParsePacket parses the contents of an OSC packet, which is either a single
// message or a bundle.
func ParsePacket(buf []byte) (Element, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	if buf[0] == '#' {
		return ParseBundle(buf)
	}
	return ParseMessage(buf)
}

// Flatten returns every message held by e, depth first, in the order they
// appear on the wire.
func Flatten(e Element) []*Message {
	var out []*Message
	var walk func(Element)
	walk = func(e Element) {
		switch e := e.(type) {
		case *Message:
			out = append(out, e)
		case *Bundle:
			for _, c := range e.Elements {
				walk(c)
			}
		}
	}
	walk(e)
	return out
}
