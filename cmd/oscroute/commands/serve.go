package commands

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pfcm/oscroute/config"
	"github.com/pfcm/oscroute/internal/printer"
	"github.com/pfcm/oscroute/router"
	"github.com/pfcm/oscroute/serial"
	"github.com/pfcm/oscroute/server"
)

var serveFlags struct {
	listen string
	sendTo string
	match  string
	tick   time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive and route OSC packets until interrupted",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.listen, "listen", "", "`host:port` to receive on, overriding the config")
	f.StringVar(&serveFlags.sendTo, "send-to", "", "`host:port` to send outbound packets to")
	f.StringVar(&serveFlags.match, "match", "", "pattern matching `mode`: segment or glob")
	f.DurationVar(&serveFlags.tick, "tick", 0, "processing `period`")
}

// applyServeFlags overrides cfg with any flags that were set.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if f.Changed("send-to") {
		cfg.SendTo = serveFlags.sendTo
	}
	if f.Changed("match") {
		cfg.Match = serveFlags.match
	}
	if f.Changed("tick") {
		cfg.Tick = serveFlags.tick
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return printer.Error("Invalid flags", err.Error())
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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
	for _, b := range rt.Bindings() {
		if b.CatchAll {
			printer.Step("catch-all → %s", cfg.CatchAll)
		} else {
			printer.Step("route %s", b.Pattern)
		}
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return printer.Error("Couldn't listen", err.Error(),
			"Pick another address with --listen")
	}
	defer conn.Close()
	var dest net.Addr
	if cfg.SendTo != "" {
		if dest, err = net.ResolveUDPAddr("udp", cfg.SendTo); err != nil {
			return printer.Error("Bad send address", err.Error())
		}
	}
	l := server.NewListener(conn, rt, server.Config{
		Tick: cfg.Tick,
		Dest: dest,
		Pool: cfg.PoolConfig(),
		Logf: log.Printf,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Serve(gctx) })
	printer.Success("Listening on %v", l.Addr())

	if sc := cfg.Serial; sc != nil {
		port, err := serial.Open(sc.Port, sc.Options)
		if err != nil {
			stop()
			g.Wait()
			return printer.Error("Couldn't open serial port", err.Error())
		}
		link := serial.NewLink(port, rt, serial.Config{Pool: cfg.PoolConfig(), Logf: log.Printf})
		g.Go(func() error { return link.Run(gctx) })
		printer.Success("Reading %s", sc.Port)
	}

	err = g.Wait()
	s := rt.Stats()
	ls := l.Stats()
	printer.Info("received %d packets (%d dropped, %d invalid), routed %d messages, %d unroutable, %d handler errors",
		ls.Received, ls.Dropped, ls.Invalid, s.Routed, s.Unroutable, s.HandlerErrors)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return printer.Error("Stopped", err.Error())
	}
	return nil
}
