package selector

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/metrics"
	"github.com/arloliu/fabric/loadbalance"
	"github.com/arloliu/fabric/types"
)

// Call is the selection state of one outbound call.
//
// A call starts unselected, holds one conduit once selected, and returns to
// unselected when completed.
type Call struct {
	id string

	mu      sync.Mutex
	conduit Conduit
	next    string
	tried   map[string]struct{}
}

// NewCall creates an unselected call.
func NewCall() *Call {
	return &Call{id: uuid.NewString(), tried: make(map[string]struct{})}
}

// ID returns the call id.
func (c *Call) ID() string { return c.id }

// Conduit returns the selected conduit, or nil.
func (c *Call) Conduit() Conduit {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conduit
}

// Option configures a TargetSelector.
type Option func(*TargetSelector)

// WithInitiator registers an initiator for its schemes.
func WithInitiator(i ConduitInitiator) Option {
	return func(s *TargetSelector) {
		for _, scheme := range i.Schemes() {
			s.initiators[scheme] = i
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(s *TargetSelector) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *TargetSelector) {
		s.metrics = m
	}
}

// TargetSelector selects one conduit per call from a load-balance strategy.
//
// It never reads the store; addresses come from the strategy's cached list.
type TargetSelector struct {
	strategy   loadbalance.Strategy
	initiators map[string]ConduitInitiator
	logger     types.Logger
	metrics    types.MetricsCollector
	active     *xsync.Map[string, *Call]
}

// New creates a selector over strategy.
func New(strategy loadbalance.Strategy, opts ...Option) *TargetSelector {
	s := &TargetSelector{
		strategy:   strategy,
		initiators: make(map[string]ConduitInitiator),
		active:     xsync.NewMap[string, *Call](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	s.metrics = metrics.OrNop(s.metrics)

	return s
}

// SelectConduit returns the call's conduit, selecting and opening one first if
// the call has none.
//
// Returns:
//   - Conduit: Cached or newly opened conduit
//   - error: types.ErrNoEndpointsAvailable, types.ErrNoConduitInitiator when no
//     initiator handles the address scheme (the call stays unselected), or the
//     initiator's error
func (s *TargetSelector) SelectConduit(ctx context.Context, call *Call) (Conduit, error) {
	call.mu.Lock()
	defer call.mu.Unlock()

	if call.conduit != nil {
		return call.conduit, nil
	}

	address := call.next
	if address == "" {
		var err error
		if address, err = s.strategy.GetNextAlternateAddress(); err != nil {
			s.logger.Warn("no endpoint available", "call", call.id, "error", err)
			return nil, err
		}
	}

	conduit, err := s.open(ctx, address)
	if err != nil {
		s.logger.Warn("failed to open conduit", "call", call.id, "address", address, "error", err)
		return nil, err
	}

	call.conduit = conduit
	call.next = ""
	s.track(call, true)

	return conduit, nil
}

// Complete releases the call's conduit so the next use selects again.
func (s *TargetSelector) Complete(call *Call) {
	call.mu.Lock()
	defer call.mu.Unlock()

	s.releaseLocked(call)
	call.next = ""
	clear(call.tried)
	s.track(call, false)
}

// ActiveCalls returns the number of calls holding a conduit.
func (s *TargetSelector) ActiveCalls() int {
	return s.active.Size()
}

// track adds or removes call from the active set and publishes its size.
func (s *TargetSelector) track(call *Call, active bool) {
	if active {
		s.active.Store(call.id, call)
	} else {
		s.active.Delete(call.id)
	}
	s.metrics.RecordActiveCalls(s.strategy.Name(), s.active.Size())
}

func (s *TargetSelector) open(ctx context.Context, address string) (Conduit, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	initiator, ok := s.initiators[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q of %s", types.ErrNoConduitInitiator, u.Scheme, address)
	}

	return initiator.Open(ctx, address)
}

func (s *TargetSelector) releaseLocked(call *Call) {
	if call.conduit == nil {
		return
	}

	if err := call.conduit.Close(); err != nil {
		s.logger.Debug("failed to close conduit", "call", call.id, "address", call.conduit.Address(), "error", err)
	}
	call.conduit = nil
}
