package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
)

// DefaultPublishTimeout bounds each publish, since receivers run on the
// router's tick.
const DefaultPublishTimeout = 250 * time.Millisecond

// Redis is a receiver that publishes each message it is handed, as a JSON
// Event, to the channel named by its address with a prefix, eg.
// "osc:/muse/0/eeg". Delivery is at most once, like Redis pub/sub.
type Redis struct {
	rdb     *redis.Client
	pattern string
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// RedisConfig configures a Redis sink.
type RedisConfig struct {
	// Pattern is the address pattern to register for.
	Pattern string
	// Prefix is prepended to addresses to name channels.
	Prefix string
	// Timeout bounds each publish, DefaultPublishTimeout if zero.
	Timeout time.Duration
}

// NewRedis returns a Redis sink connecting with opts.
func NewRedis(opts *redis.Options, cfg RedisConfig) (*Redis, error) {
	if err := router.ValidatePattern(cfg.Pattern); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}
	return &Redis{
		rdb:     redis.NewClient(opts),
		pattern: cfg.Pattern,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		now:     time.Now,
	}, nil
}

// Channel returns the channel messages for address are published to.
func (r *Redis) Channel(address string) string { return r.prefix + address }

func (r *Redis) Pattern() string { return r.pattern }

// Handle publishes m.
func (r *Redis) Handle(m *packet.Message) error {
	b, err := json.Marshal(NewEvent(m, r.now()))
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", m.Address, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.Channel(m.Address), b).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", m.Address, err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the connection. Unregister the sink first.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
