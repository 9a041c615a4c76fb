package fabric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/fabric/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "fabric", cfg.Root)
	require.Equal(t, "even", cfg.Policy)
	require.Equal(t, "log", cfg.Listener.Type)
	require.Equal(t, 6*time.Second, cfg.MembershipTTL)
	require.Equal(t, 64, cfg.QueueSize)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "container", cfg.ContainerIDs.Prefix)
	require.Equal(t, 99, cfg.ContainerIDs.Max)
	require.Equal(t, 30*time.Second, cfg.ContainerIDs.TTL)
	require.Equal(t, "fabric-registry", cfg.KVBuckets.Registry)
	require.Equal(t, "fabric-membership", cfg.KVBuckets.Membership)
	require.False(t, cfg.PreserveEnumerationOrder)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "fabric", cfg.Root)
		require.Equal(t, 6*time.Second, cfg.MembershipTTL)
		require.Equal(t, 2*time.Second, cfg.RefreshInterval)
		require.Equal(t, 2*time.Second, cfg.PollInterval)
		require.Equal(t, "fabric-ids", cfg.KVBuckets.ContainerIDs)
	})

	t.Run("derives intervals from a custom TTL", func(t *testing.T) {
		cfg := Config{MembershipTTL: 9 * time.Second, PollInterval: time.Second}
		SetDefaults(&cfg)

		require.Equal(t, 3*time.Second, cfg.RefreshInterval)
		require.Equal(t, time.Second, cfg.PollInterval)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Root:      "acme",
			Policy:    "consistent-hash",
			QueueSize: 16,
			ContainerIDs: ContainerIDConfig{
				Prefix: "node",
				Min:    10,
				Max:    19,
				TTL:    time.Minute,
			},
		}
		SetDefaults(&cfg)

		require.Equal(t, "acme", cfg.Root)
		require.Equal(t, "consistent-hash", cfg.Policy)
		require.Equal(t, 16, cfg.QueueSize)
		require.Equal(t, ContainerIDConfig{Prefix: "node", Min: 10, Max: 19, TTL: time.Minute}, cfg.ContainerIDs)
	})
}

func TestParseConfig(t *testing.T) {
	t.Run("durations and nested listener config", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
taskId: orders
definition: "unit {{.ID}}"
partitionPath: tasks.orders.partitions
url: http://worker-1:8080
policy: consistent-hash
preserveEnumerationOrder: true
membershipTtl: 9s
queueSize: 32
listener:
  type: consumer
  consumer:
    stream: ORDERS
    subjectPrefix: orders
    ackWait: 45s
containerIds:
  prefix: node
  max: 9
  ttl: 1m
`))
		require.NoError(t, err)

		require.Equal(t, "orders", cfg.TaskID)
		require.Equal(t, "unit {{.ID}}", cfg.Definition)
		require.Equal(t, "tasks.orders.partitions", cfg.PartitionPath)
		require.Equal(t, "http://worker-1:8080", cfg.URL)
		require.Equal(t, "consistent-hash", cfg.Policy)
		require.True(t, cfg.PreserveEnumerationOrder)
		require.Equal(t, 9*time.Second, cfg.MembershipTTL)
		require.Equal(t, 3*time.Second, cfg.RefreshInterval)
		require.Equal(t, 32, cfg.QueueSize)
		require.Equal(t, "consumer", cfg.Listener.Type)
		require.Equal(t, "ORDERS", cfg.Listener.Consumer.Stream)
		require.Equal(t, 45*time.Second, cfg.Listener.Consumer.AckWait)
		require.Equal(t, "node", cfg.ContainerIDs.Prefix)
		require.Equal(t, time.Minute, cfg.ContainerIDs.TTL)
		require.Equal(t, "fabric-registry", cfg.KVBuckets.Registry)
		require.NoError(t, cfg.Validate())
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseConfig([]byte("taskId: [orders"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.TaskID = "orders"
		SetDefaults(&cfg)

		return cfg
	}

	require.NoError(t, func() error { cfg := valid(); return cfg.Validate() }())

	cases := map[string]func(*Config){
		"missing task id":           func(c *Config) { c.TaskID = "" },
		"dotted container id":       func(c *Config) { c.ContainerID = "w.1" },
		"ttl below one second":      func(c *Config) { c.MembershipTTL = 500 * time.Millisecond },
		"refresh misses ttl":        func(c *Config) { c.RefreshInterval = 4 * time.Second },
		"id lease shorter than ttl": func(c *Config) { c.ContainerIDs.TTL = time.Second },
		"empty id range":            func(c *Config) { c.ContainerIDs.Min = 5; c.ContainerIDs.Max = 4 },
		"zero queue":                func(c *Config) { c.QueueSize = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("id pool is ignored with a fixed container id", func(t *testing.T) {
		cfg := valid()
		cfg.ContainerID = "w1"
		cfg.ContainerIDs.TTL = time.Second
		require.NoError(t, cfg.Validate())
	})

	t.Run("test config is valid", func(t *testing.T) {
		cfg := TestConfig()
		cfg.TaskID = "orders"
		require.NoError(t, cfg.Validate())
	})
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	logger := logging.NewTest(t)

	cfg := TestConfig()
	cfg.TaskID = "orders"
	cfg.RefreshInterval = 700 * time.Millisecond
	cfg.QueueSize = 2
	cfg.PreserveEnumerationOrder = true

	require.NoError(t, cfg.Validate())
	cfg.ValidateWithWarnings(logger)
	require.Len(t, logger.Entries("WARN"), 3)

	quiet := logging.NewTest(t)
	cfg = TestConfig()
	cfg.ValidateWithWarnings(quiet)
	require.Empty(t, quiet.Entries("WARN"))
}
