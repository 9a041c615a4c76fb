package fabric

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/fabric/listener"
	"github.com/arloliu/fabric/policy"
)

// ListenerConfig selects and configures the partition listener.
type ListenerConfig struct {
	// Type is the listener type tag: "log", "template" or "consumer".
	Type string `yaml:"type"`

	// Template configures the "template" listener.
	Template listener.TemplateConfig `yaml:"template"`

	// Consumer configures the "consumer" listener.
	Consumer listener.ConsumerConfig `yaml:"consumer"`
}

// ContainerIDConfig configures the stable container id pool.
//
// The pool is only used when Config.ContainerID is empty: the worker then
// claims the lowest free "<Prefix>-<n>" with Min <= n <= Max.
type ContainerIDConfig struct {
	Prefix string `yaml:"prefix"`
	Min    int    `yaml:"min"`
	Max    int    `yaml:"max"`

	// TTL is the lease of a claimed id, renewed every TTL/3.
	TTL time.Duration `yaml:"ttl"`
}

// KVBucketConfig configures NATS JetStream KV bucket names.
type KVBucketConfig struct {
	// Registry holds worker node records (no TTL).
	Registry string `yaml:"registry"`

	// Membership holds group registrations and mastership leases (TTL = MembershipTTL).
	Membership string `yaml:"membership"`

	// ContainerIDs holds stable container id leases (TTL = ContainerIDs.TTL).
	ContainerIDs string `yaml:"containerIds"`

	// Partitions holds partition definitions read by source.KV.
	Partitions string `yaml:"partitions"`
}

// Config is the configuration of a TaskManager.
//
// All duration fields accept Go duration strings like "6s", "500ms" in YAML.
type Config struct {
	// TaskID identifies the task. Workers of the same task form one group.
	TaskID string `yaml:"taskId"`

	// Definition is handed to the partition listener (e.g., a unit template).
	Definition string `yaml:"definition"`

	// PartitionPath is the key prefix under which the task's partitions live.
	PartitionPath string `yaml:"partitionPath"`

	// URL is published in this worker's node record.
	URL string `yaml:"url"`

	// ContainerID is this worker's identity. Empty claims one from the pool.
	ContainerID string `yaml:"containerId"`

	// Root is the namespace of all registry keys. Default: "fabric".
	Root string `yaml:"root"`

	// Policy is the balancing policy type tag: "even" or "consistent-hash".
	Policy string `yaml:"policy"`

	// Listener selects the partition listener.
	Listener ListenerConfig `yaml:"listener"`

	// PreserveEnumerationOrder hands partitions and members to the policy in
	// enumeration order instead of sorting them. The resulting assignment then
	// depends on store enumeration order.
	PreserveEnumerationOrder bool `yaml:"preserveEnumerationOrder"`

	// MembershipTTL is how long a registration survives without refresh.
	// A crashed worker is dropped from the group after at most this long.
	MembershipTTL time.Duration `yaml:"membershipTtl"`

	// RefreshInterval is how often registrations and mastership are renewed.
	// Default: MembershipTTL/3.
	RefreshInterval time.Duration `yaml:"refreshInterval"`

	// PollInterval is the fallback group re-read interval. Default: RefreshInterval.
	PollInterval time.Duration `yaml:"pollInterval"`

	// QueueSize bounds the executor queue. Rebalance requests are dropped when full.
	QueueSize int `yaml:"queueSize"`

	// OperationTimeout bounds a single rebalance or assignment application.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout bounds Start.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout bounds Stop when the caller's context has no deadline.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// ContainerIDs configures the stable id pool.
	ContainerIDs ContainerIDConfig `yaml:"containerIds"`

	// KVBuckets controls NATS JetStream KV bucket names.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with production defaults.
//
// TaskID has no default and must be set.
func DefaultConfig() Config {
	return Config{
		Root:             "fabric",
		Policy:           policy.TypeEven,
		Listener:         ListenerConfig{Type: listener.TypeLog},
		MembershipTTL:    6 * time.Second,
		QueueSize:        64,
		OperationTimeout: 10 * time.Second,
		StartupTimeout:   30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		ContainerIDs: ContainerIDConfig{
			Prefix: "container",
			Min:    0,
			Max:    99,
			TTL:    30 * time.Second,
		},
		KVBuckets: KVBucketConfig{
			Registry:     "fabric-registry",
			Membership:   "fabric-membership",
			ContainerIDs: "fabric-ids",
			Partitions:   "fabric-partitions",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Root == "" {
		cfg.Root = defaults.Root
	}
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	if cfg.Listener.Type == "" {
		cfg.Listener.Type = defaults.Listener.Type
	}
	if cfg.MembershipTTL == 0 {
		cfg.MembershipTTL = defaults.MembershipTTL
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = cfg.MembershipTTL / 3
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = cfg.RefreshInterval
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.ContainerIDs.Prefix == "" {
		cfg.ContainerIDs.Prefix = defaults.ContainerIDs.Prefix
	}
	if cfg.ContainerIDs.Max == 0 {
		cfg.ContainerIDs.Max = defaults.ContainerIDs.Max
	}
	if cfg.ContainerIDs.TTL == 0 {
		cfg.ContainerIDs.TTL = defaults.ContainerIDs.TTL
	}
	if cfg.KVBuckets.Registry == "" {
		cfg.KVBuckets.Registry = defaults.KVBuckets.Registry
	}
	if cfg.KVBuckets.Membership == "" {
		cfg.KVBuckets.Membership = defaults.KVBuckets.Membership
	}
	if cfg.KVBuckets.ContainerIDs == "" {
		cfg.KVBuckets.ContainerIDs = defaults.KVBuckets.ContainerIDs
	}
	if cfg.KVBuckets.Partitions == "" {
		cfg.KVBuckets.Partitions = defaults.KVBuckets.Partitions
	}
}

// ParseConfig decodes a YAML document and applies defaults.
//
// The result is not validated; NewTaskManager validates it.
//
// Example:
//
//	cfg, err := fabric.ParseConfig([]byte("taskId: orders\npolicy: consistent-hash\n"))
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	SetDefaults(&cfg)

	return cfg, nil
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - TaskID (and ContainerID, if set) is a single key token
//   - RefreshInterval <= MembershipTTL/2 (allow one missed refresh)
//   - ContainerIDs.TTL >= MembershipTTL (an id must outlive its registration)
//   - ContainerIDs.Min <= ContainerIDs.Max
//   - QueueSize > 0
//
// Returns:
//   - error: Wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if err := ValidateID(cfg.TaskID); err != nil {
		return fmt.Errorf("%w: TaskID: %w", ErrInvalidConfig, err)
	}
	if cfg.ContainerID != "" {
		if err := ValidateID(cfg.ContainerID); err != nil {
			return fmt.Errorf("%w: ContainerID: %w", ErrInvalidConfig, err)
		}
	}

	if cfg.MembershipTTL < time.Second {
		return fmt.Errorf("%w: MembershipTTL (%v) must be >= 1s", ErrInvalidConfig, cfg.MembershipTTL)
	}

	if cfg.RefreshInterval <= 0 || 2*cfg.RefreshInterval > cfg.MembershipTTL {
		return fmt.Errorf(
			"%w: RefreshInterval (%v) must be > 0 and <= MembershipTTL/2 (%v) to allow one missed refresh",
			ErrInvalidConfig, cfg.RefreshInterval, cfg.MembershipTTL/2,
		)
	}

	if cfg.ContainerID == "" {
		if cfg.ContainerIDs.TTL < cfg.MembershipTTL {
			return fmt.Errorf(
				"%w: ContainerIDs.TTL (%v) must be >= MembershipTTL (%v)",
				ErrInvalidConfig, cfg.ContainerIDs.TTL, cfg.MembershipTTL,
			)
		}
		if cfg.ContainerIDs.Min < 0 || cfg.ContainerIDs.Min > cfg.ContainerIDs.Max {
			return fmt.Errorf(
				"%w: ContainerIDs range [%d, %d] is empty",
				ErrInvalidConfig, cfg.ContainerIDs.Min, cfg.ContainerIDs.Max,
			)
		}
	}

	if cfg.QueueSize <= 0 {
		return fmt.Errorf("%w: QueueSize must be > 0, got %d", ErrInvalidConfig, cfg.QueueSize)
	}

	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("%w: OperationTimeout must be > 0, got %v", ErrInvalidConfig, cfg.OperationTimeout)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// This is called after Validate() in NewTaskManager to provide operator guidance.
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.RefreshInterval > cfg.MembershipTTL/3 {
		logger.Warn(
			"RefreshInterval is above recommended maximum",
			"refreshInterval", cfg.RefreshInterval,
			"membershipTTL", cfg.MembershipTTL,
			"recommended", cfg.MembershipTTL/3,
		)
	}

	if cfg.PreserveEnumerationOrder {
		logger.Warn(
			"PreserveEnumerationOrder is set, assignments depend on store enumeration order",
			"task", cfg.TaskID,
		)
	}

	if cfg.QueueSize < 8 {
		logger.Warn(
			"QueueSize is very small, rebalance requests may be dropped under churn",
			"queueSize", cfg.QueueSize,
			"recommended", 64,
		)
	}
}

// TestConfig returns a configuration with fast timings for tests.
//
// Example:
//
//	cfg := fabric.TestConfig()
//	cfg.TaskID = "orders"
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.MembershipTTL = 1500 * time.Millisecond
	cfg.RefreshInterval = 500 * time.Millisecond
	cfg.PollInterval = 250 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.ContainerIDs.TTL = 3 * time.Second

	return cfg
}
