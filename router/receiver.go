package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pfcm/oscroute/packet"
)

// Receiver is something that can be sent routed messages: typically one
// device's data stream. Routers tell receivers apart with ==, so
// implementations should be pointers or otherwise comparable.
type Receiver interface {
	// Pattern returns the address pattern the receiver wants messages
	// for, eg. "/muse/0/*". It is read once, at registration.
	Pattern() string
	// Handle is called once per message, from whichever goroutine calls
	// Router.ProcessData. It must not block for long, since every other
	// receiver waits for it, and there are no retries: an error is
	// logged and the message is marked ready regardless.
	Handle(*packet.Message) error
}

// ReceiverFunc converts a function into a Receiver for the given pattern.
// Each call returns a distinct Receiver, which is what Unregister compares.
func ReceiverFunc(pattern string, f func(*packet.Message) error) Receiver {
	return &receiverFunc{pattern: pattern, f: f}
}

type receiverFunc struct {
	pattern string
	f       func(*packet.Message) error
}

func (r *receiverFunc) Pattern() string                { return r.pattern }
func (r *receiverFunc) Handle(m *packet.Message) error { return r.f(m) }
func (r *receiverFunc) String() string                 { return fmt.Sprintf("ReceiverFunc(%s)", r.pattern) }

// ErrInvalidPattern is returned when registering a receiver whose pattern
// isn't an address pattern.
var ErrInvalidPattern = errors.New("invalid address pattern")

// ValidatePattern checks that p looks like an address pattern: it must start
// with a "/".
func ValidatePattern(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: %q must start with \"/\"", ErrInvalidPattern, p)
	}
	return nil
}

// Match reports whether address matches pattern, comparing them one
// "/"-separated part at a time. Both must have the same number of parts, and
// each pattern part must either equal the address part or be exactly "*",
// which matches any single part. Partial wildcards such as "mus*" are only
// understood in MatchGlob mode.
func Match(pattern, address string) bool {
	for {
		ps, prest, pmore := strings.Cut(pattern, "/")
		as, arest, amore := strings.Cut(address, "/")
		if ps != "*" && ps != as {
			return false
		}
		if pmore != amore {
			return false
		}
		if !pmore {
			return true
		}
		pattern, address = prest, arest
	}
}

// DevicePattern returns the pattern matching every address under a device
// type, depth parts deep: DevicePattern("mitsar201", 2) is "/mitsar201/*/*".
func DevicePattern(device string, depth int) string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(device)
	for range depth {
		sb.WriteString("/*")
	}
	return sb.String()
}

// MatchMode selects how a router compares registered patterns to message
// addresses.
type MatchMode int

const (
	// MatchSegment compares whole parts, with "*" matching any one part.
	MatchSegment MatchMode = iota
	// MatchGlob understands the full OSC pattern grammar within each part.
	MatchGlob
)

func (m MatchMode) String() string {
	switch m {
	case MatchSegment:
		return "segment"
	case MatchGlob:
		return "glob"
	}
	return fmt.Sprintf("MatchMode(%d)", int(m))
}

// ParseMatchMode parses the String form of a MatchMode. The empty string
// is MatchSegment.
func ParseMatchMode(s string) (MatchMode, error) {
	switch s {
	case "", "segment":
		return MatchSegment, nil
	case "glob":
		return MatchGlob, nil
	}
	return 0, fmt.Errorf("unknown match mode %q", s)
}

// compile returns the predicate for pattern under mode.
func compile(mode MatchMode, pattern string) (func(string) bool, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	switch mode {
	case MatchSegment:
		return func(addr string) bool { return Match(pattern, addr) }, nil
	case MatchGlob:
		p, err := ParsePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		return p.Match, nil
	}
	return nil, fmt.Errorf("unknown match mode %v", mode)
}
