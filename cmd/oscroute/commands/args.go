package commands

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	osc "github.com/pfcm/oscroute"
)

// parseArgument parses a command line argument. A type prefix picks the
// type ("i:3", "h:3", "f:1", "d:1", "s:3", "b:00ff", "t:2024-05-01T12:00:00Z");
// T, F, N and I alone are the empty types. Otherwise integers are int32,
// other numbers float32, and anything else a string.
func parseArgument(s string) (osc.Argument, error) {
	switch s {
	case "T":
		return osc.True{}, nil
	case "F":
		return osc.False{}, nil
	case "N":
		return osc.Null{}, nil
	case "I":
		return osc.Impulse{}, nil
	}
	if tag, v, ok := strings.Cut(s, ":"); ok && len(tag) == 1 {
		switch tag {
		case "i":
			i, err := strconv.ParseInt(v, 0, 32)
			if err != nil {
				return nil, err
			}
			return osc.AsInt32(i), nil
		case "h":
			i, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, err
			}
			a := osc.Int64(i)
			return &a, nil
		case "f":
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return nil, err
			}
			return osc.AsFloat32(f), nil
		case "d":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, err
			}
			a := osc.Float64(f)
			return &a, nil
		case "s":
			return osc.AsString(v), nil
		case "b":
			b, err := hex.DecodeString(v)
			if err != nil {
				return nil, err
			}
			a := osc.Blob(b)
			return &a, nil
		case "t":
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, err
			}
			return &osc.TimeTag{Time: t}, nil
		}
		return nil, fmt.Errorf("unknown type prefix %q in %q", tag, s)
	}
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return osc.AsInt32(i), nil
	}
	if f, err := strconv.ParseFloat(s, 32); err == nil {
		return osc.AsFloat32(f), nil
	}
	return osc.AsString(s), nil
}

func parseArguments(ss []string) ([]osc.Argument, error) {
	args := make([]osc.Argument, len(ss))
	for i, s := range ss {
		a, err := parseArgument(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		args[i] = a
	}
	return args, nil
}
