package commands

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pfcm/oscroute/internal/printer"
	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/replay"
	"github.com/pfcm/oscroute/router"
)

var replayFlags struct {
	port  int
	speed float64
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE.pcap",
	Short: "Route OSC packets from a packet capture",
	Long: `Route the UDP payloads in a pcap file through the configured routes,
as if they had arrived on the listen address.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.IntVar(&replayFlags.port, "port", 0, "only replay datagrams sent to this UDP `port`")
	f.Float64Var(&replayFlags.speed, "speed", 0, "replay at this `multiple` of real time, 0 for as fast as possible")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return printer.Error("Couldn't open capture", err.Error())
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rc := cfg.RouterConfig()
	rc.Logf = log.Printf
	rt := router.New(rc)
	defer rt.Close()
	sinks, err := registerRoutes(ctx, rt, cfg)
	if err != nil {
		return printer.Error("Couldn't set up routes", err.Error())
	}
	defer sinks.Close()

	pool := packet.NewPool(cfg.PoolConfig())
	route := replay.Route(rt, pool)
	stats, err := replay.Replay(ctx, f, replay.Options{Port: replayFlags.port, Speed: replayFlags.speed}, func(d replay.Datagram) error {
		if err := route(d); err != nil {
			return err
		}
		// Tick once per datagram.
		rt.ProcessData()
		return nil
	})
	for rt.ProcessData() > 0 {
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return printer.Error("Replay failed", err.Error())
	}
	s := rt.Stats()
	printer.Success("Replayed %d of %d captured packets: %d messages routed, %d unroutable",
		stats.Datagrams, stats.Packets, s.Routed, s.Unroutable)
	return nil
}
