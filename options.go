package fabric

import "github.com/arloliu/fabric/policy"

// Option configures a TaskManager with optional dependencies.
type Option func(*managerOptions)

// managerOptions holds optional TaskManager configuration.
type managerOptions struct {
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	policy   policy.Factory
	listener PartitionListener
	group    Group
	handler  MessageHandler
}

// WithHooks sets lifecycle event hooks.
//
// Example:
//
//	hooks := &fabric.Hooks{
//	    OnAssignmentChanged: func(ctx context.Context, added, removed []string) error {
//	        return handleChanges(added, removed)
//	    },
//	}
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src, fabric.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *managerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src, fabric.WithMetrics(fabric.NewPrometheusMetrics(reg)))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *managerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
func WithLogger(logger Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithPolicy overrides the balancing policy selected by Config.Policy.
//
// The factory receives the writer persisting worker node records.
//
// Example:
//
//	fabric.WithPolicy(func(w fabric.AssignmentWriter, l fabric.Logger) fabric.BalancingPolicy {
//	    return policy.NewConsistentHash(w, l, policy.WithVirtualNodes(300))
//	})
func WithPolicy(factory policy.Factory) Option {
	return func(o *managerOptions) {
		o.policy = factory
	}
}

// WithListener overrides the partition listener selected by Config.Listener.
func WithListener(l PartitionListener) Option {
	return func(o *managerOptions) {
		o.listener = l
	}
}

// WithGroup replaces the NATS KV task group, e.g. with a shared or fake group.
//
// The TaskManager starts the group but leaves stopping it to the caller.
func WithGroup(g Group) Option {
	return func(o *managerOptions) {
		o.group = g
	}
}

// WithMessageHandler sets the handler of the "consumer" listener.
func WithMessageHandler(h MessageHandler) Option {
	return func(o *managerOptions) {
		o.handler = h
	}
}
