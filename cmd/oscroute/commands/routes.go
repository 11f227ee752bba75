package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pfcm/oscroute/config"
	"github.com/pfcm/oscroute/internal/printer"
	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
	"github.com/pfcm/oscroute/sink"
)

func printMessage(m *packet.Message) error {
	printer.Message(time.Now(), &m.Message)
	return nil
}

// sinks holds the sinks routes share, created when the first route needs
// them.
type sinks struct {
	cfg   *config.Config
	redis *sink.Redis
	rec   *sink.Recorder
}

func (s *sinks) handler(ctx context.Context, name, pattern string) (func(*packet.Message) error, error) {
	switch name {
	case config.SinkPrint:
		return printMessage, nil
	case config.SinkRedis:
		if s.redis == nil {
			rc := s.cfg.Redis
			r, err := sink.NewRedis(&redis.Options{
				Addr:     rc.Addr,
				Password: rc.Password,
				DB:       rc.DB,
			}, sink.RedisConfig{Pattern: pattern, Prefix: rc.Prefix, Timeout: rc.Timeout})
			if err != nil {
				return nil, err
			}
			if err := r.Ping(ctx); err != nil {
				r.Close()
				return nil, fmt.Errorf("connecting to redis at %s: %w", rc.Addr, err)
			}
			s.redis = r
		}
		return s.redis.Handle, nil
	case config.SinkRecord:
		if s.rec == nil {
			r, err := sink.OpenRecorder(s.cfg.Record.Path, pattern)
			if err != nil {
				return nil, err
			}
			s.rec = r
		}
		return s.rec.Handle, nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

func (s *sinks) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.rec != nil {
		s.rec.Close()
	}
}

// registerRoutes registers a receiver on rt for each configured route, and
// the catch-all. The caller must close the returned sinks once rt is done
// with them.
func registerRoutes(ctx context.Context, rt *router.Router, cfg *config.Config) (*sinks, error) {
	s := &sinks{cfg: cfg}
	for _, r := range cfg.Routes {
		h, err := s.handler(ctx, r.Sink, r.Pattern)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := rt.Register(router.ReceiverFunc(r.Pattern, h)); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.CatchAll != "" {
		h, err := s.handler(ctx, cfg.CatchAll, "/")
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := rt.RegisterCatchAll(router.ReceiverFunc("/", h)); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}
