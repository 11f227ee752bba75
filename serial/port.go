// Package serial carries OSC packets over a serial line, framed with SLIP as
// OSC 1.1 recommends for stream transports.
package serial

import (
	"fmt"
	"io"
	"strings"

	bugst "go.bug.st/serial"
)

// Port is the part of a serial port a Link uses. Closing it must unblock a
// pending Read.
type Port interface {
	io.ReadWriteCloser
}

// PortOptions describes the line settings used to open a real port.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// Normalize validates the options and fills in defaults for unset values:
// 115200 baud, 8N1.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: must be 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E or O", o.Parity)
	}
	return o, nil
}

// Mode converts the options to the form go.bug.st/serial wants.
func (o PortOptions) Mode() (*bugst.Mode, error) {
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &bugst.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		StopBits: bugst.OneStopBit,
		Parity:   bugst.NoParity,
	}
	if o.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	switch o.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	}
	return mode, nil
}

// Open opens the serial port at path, eg. "/dev/ttyUSB0".
func Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	p, err := bugst.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return p, nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return bugst.GetPortsList()
}
