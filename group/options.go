package group

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/fabric/types"
)

// Config holds the timing parameters of a group.
type Config struct {
	// TTL is the TTL of the membership bucket. Registrations and the
	// mastership lease expire after TTL without a refresh.
	TTL time.Duration

	// RefreshInterval is how often a joined member rewrites its registration
	// and renews mastership. Default: TTL/3.
	RefreshInterval time.Duration

	// PollInterval is the fallback polling interval of the monitor.
	// Default: RefreshInterval.
	PollInterval time.Duration

	// CheckTimeout bounds each snapshot read of the monitor. A read that
	// times out counts as a connectivity failure.
	// Default: RefreshInterval, at least one second.
	CheckTimeout time.Duration
}

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 6 * time.Second

func (c *Config) setDefaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = c.TTL / 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = c.RefreshInterval
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = max(c.RefreshInterval, time.Second)
	}
}

// Option configures a NATSGroup.
type Option func(*NATSGroup)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(g *NATSGroup) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(g *NATSGroup) {
		g.metrics = metrics
	}
}

// WithConn sets the connection behind the bucket. Store calls that run out
// of time while it is not connected are reported as connectivity failures.
func WithConn(nc *nats.Conn) Option {
	return func(g *NATSGroup) {
		g.conn = nc
	}
}
