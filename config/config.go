// Package config loads oscroute's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
	"github.com/pfcm/oscroute/serial"
)

// Sink names understood in routes.
const (
	SinkPrint  = "print"
	SinkRedis  = "redis"
	SinkRecord = "record"
)

// Config is the top level of an oscroute.yml file.
type Config struct {
	// Listen is the UDP address to receive on.
	Listen string `yaml:"listen"`
	// SendTo is the UDP address outbound packets go to, if any.
	SendTo string        `yaml:"send_to,omitempty"`
	Tick   time.Duration `yaml:"tick"`
	// Match is "segment" or "glob".
	Match           string `yaml:"match"`
	MaxDrainPerTick int    `yaml:"max_drain_per_tick,omitempty"`
	Pool            Pool   `yaml:"pool"`
	// Routes are registered in order, so earlier routes win.
	Routes []Route `yaml:"routes"`
	// CatchAll names the sink for messages no route matches. Empty drops
	// them.
	CatchAll string        `yaml:"catch_all,omitempty"`
	Redis    *RedisConfig  `yaml:"redis,omitempty"`
	Record   *RecordConfig `yaml:"record,omitempty"`
	Serial   *SerialConfig `yaml:"serial,omitempty"`
}

// Pool sizes packet pools.
type Pool struct {
	PacketSize int     `yaml:"packet_size"`
	Growth     int     `yaml:"growth"`
	Initial    int     `yaml:"initial,omitempty"`
	ScrubRatio float64 `yaml:"scrub_ratio"`
}

// Route sends messages matching Pattern to a sink.
type Route struct {
	Pattern string `yaml:"pattern"`
	Sink    string `yaml:"sink"`
}

// RedisConfig configures the redis sink.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// RecordConfig configures the sqlite recording sink.
type RecordConfig struct {
	Path string `yaml:"path"`
}

// SerialConfig configures an OSC-over-serial link alongside UDP.
type SerialConfig struct {
	Port    string             `yaml:"port"`
	Options serial.PortOptions `yaml:",inline"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:9000",
		Tick:   10 * time.Millisecond,
		Match:  router.MatchSegment.String(),
		Pool: Pool{
			PacketSize: packet.DefaultSize,
			Growth:     packet.DefaultGrowth,
			ScrubRatio: packet.DefaultScrubRatio,
		},
		CatchAll: SinkPrint,
	}
}

// Load reads the file at path over the defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML over the defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %v", c.Tick))
	}
	if _, err := router.ParseMatchMode(c.Match); err != nil {
		errs = append(errs, err)
	}
	if c.MaxDrainPerTick < 0 {
		errs = append(errs, fmt.Errorf("max_drain_per_tick must not be negative, got %d", c.MaxDrainPerTick))
	}
	if c.Pool.PacketSize < 0 || c.Pool.Growth < 0 || c.Pool.Initial < 0 {
		errs = append(errs, errors.New("pool sizes must not be negative"))
	}
	if c.Pool.ScrubRatio < 0 || c.Pool.ScrubRatio > 1 {
		errs = append(errs, fmt.Errorf("pool scrub_ratio must be between 0 and 1, got %v", c.Pool.ScrubRatio))
	}
	for i, r := range c.Routes {
		if err := router.ValidatePattern(r.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("route %d: %w", i, err))
		}
		if err := c.validateSink(r.Sink); err != nil {
			errs = append(errs, fmt.Errorf("route %d (%s): %w", i, r.Pattern, err))
		}
	}
	if c.CatchAll != "" {
		if err := c.validateSink(c.CatchAll); err != nil {
			errs = append(errs, fmt.Errorf("catch_all: %w", err))
		}
	}
	if c.Serial != nil {
		if c.Serial.Port == "" {
			errs = append(errs, errors.New("serial: port is required"))
		}
		if _, err := c.Serial.Options.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("serial: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateSink(name string) error {
	switch name {
	case SinkPrint:
		return nil
	case SinkRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return errors.New("redis sink needs redis.addr")
		}
		return nil
	case SinkRecord:
		if c.Record == nil || c.Record.Path == "" {
			return errors.New("record sink needs record.path")
		}
		return nil
	}
	return fmt.Errorf("unknown sink %q", name)
}

// PoolConfig converts the pool settings.
func (c *Config) PoolConfig() packet.PoolConfig {
	return packet.PoolConfig{
		PacketSize: c.Pool.PacketSize,
		Growth:     c.Pool.Growth,
		Initial:    c.Pool.Initial,
		ScrubRatio: c.Pool.ScrubRatio,
	}
}

// RouterConfig returns the router settings. Match must already be valid.
func (c *Config) RouterConfig() router.Config {
	mode, _ := router.ParseMatchMode(c.Match)
	return router.Config{
		Match:           mode,
		MaxDrainPerTick: c.MaxDrainPerTick,
		Pool:            c.PoolConfig(),
	}
}
