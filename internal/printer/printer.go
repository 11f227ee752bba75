// Package printer writes the command line tool's coloured output.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	osc "github.com/pfcm/oscroute"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)

	mu sync.Mutex
	// Out and Err are where output goes, swapped out by tests.
	Out io.Writer = color.Output
	Err io.Writer = color.Error
)

// Success prints a message in green with a tick.
func Success(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints a message without colour.
func Info(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Out, format+"\n", a...)
}

// Warning prints a message in yellow.
func Warning(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	yellow.Fprintf(Err, "! %s\n", fmt.Sprintf(format, a...))
}

// Step prints a step of a longer operation.
func Step(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	cyan.Fprintf(Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with a title, an explanation and
// suggestions to Err, and returns an error holding just the title for cobra,
// which is set not to print it again.
func Error(title, explanation string, suggestions ...string) error {
	mu.Lock()
	defer mu.Unlock()
	red.Fprintf(Err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(Err, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}

// Message prints one OSC message on a line: the time it arrived, its
// address and its arguments.
func Message(at time.Time, m *osc.Message) {
	args := make([]string, len(m.Arguments))
	for i, a := range m.Arguments {
		args[i] = FormatArgument(a)
	}
	mu.Lock()
	defer mu.Unlock()
	faint.Fprint(Out, at.Format("15:04:05.000"), " ")
	cyan.Fprint(Out, m.Address)
	if len(args) > 0 {
		fmt.Fprint(Out, " ", strings.Join(args, " "))
	}
	fmt.Fprintln(Out)
}

// FormatArgument formats an argument's value the way Message prints it.
func FormatArgument(a osc.Argument) string {
	switch v := osc.NativeValue(a).(type) {
	case string:
		if _, impulse := a.(osc.Impulse); impulse {
			return "impulse"
		}
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("blob[%d]", len(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case nil:
		return "nil"
	default:
		return fmt.Sprint(v)
	}
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}
