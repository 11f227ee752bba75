package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	osc "github.com/pfcm/oscroute"
	"github.com/pfcm/oscroute/internal/printer"
	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/serial"
)

var sendFlags struct {
	to     string
	serial string
	baud   int
}

var sendCmd = &cobra.Command{
	Use:   "send ADDRESS [ARG...]",
	Short: "Send one OSC message",
	Long: `Send one OSC message over UDP, or over a serial line with --serial.

Arguments may carry a type prefix: i:3 h:3 f:1.5 d:1.5 s:text b:00ff
t:2024-05-01T12:00:00Z. T, F, N and I alone are true, false, nil and
impulse. Without a prefix integers are sent as int32, other numbers as
float32 and anything else as a string.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.to, "to", "127.0.0.1:9000", "`host:port` to send to")
	f.StringVar(&sendFlags.serial, "serial", "", "serial `port` to send on instead of UDP")
	f.IntVar(&sendFlags.baud, "baud", 0, "serial baud `rate`")
}

func runSend(cmd *cobra.Command, args []string) error {
	address := args[0]
	oscArgs, err := parseArguments(args[1:])
	if err != nil {
		return printer.Error("Bad argument", err.Error(), "See oscroute send --help for the syntax")
	}
	msg := &osc.Message{Address: address, Arguments: oscArgs}

	if sendFlags.serial != "" {
		if err := sendSerial(msg); err != nil {
			return printer.Error("Couldn't send", err.Error())
		}
	} else {
		conn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			return printer.Error("Couldn't send", err.Error())
		}
		defer conn.Close()
		if err := osc.Send(conn, sendFlags.to, address, oscArgs...); err != nil {
			return printer.Error("Couldn't send", err.Error())
		}
	}
	printer.Success("Sent %s%s", address, describeArgs(oscArgs))
	return nil
}

// sendSerial composes msg into a packet and writes it to the serial port as
// one frame.
func sendSerial(msg *osc.Message) error {
	port, err := serial.Open(sendFlags.serial, serial.PortOptions{BaudRate: sendFlags.baud})
	if err != nil {
		return err
	}
	defer port.Close()
	p := packet.New(packet.DefaultSize)
	w, err := p.BeginWrite()
	if err != nil {
		return err
	}
	if err := w.WriteMessage(msg); err != nil {
		return fmt.Errorf("composing message: %w", err)
	}
	if err := p.EndWrite(); err != nil {
		return err
	}
	_, err = port.Write(serial.AppendFrame(nil, p.Bytes()))
	return err
}

func describeArgs(args []osc.Argument) string {
	if len(args) == 0 {
		return ""
	}
	s := " " + printer.FormatArgument(args[0])
	for _, a := range args[1:] {
		s += " " + printer.FormatArgument(a)
	}
	return s
}
