package loadbalance

import (
	"fmt"
	"net/url"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/metrics"
	"github.com/arloliu/fabric/types"
)

// Strategy picks endpoint addresses for outbound calls.
type Strategy interface {
	// Name returns the strategy type tag.
	Name() string

	// GetNextAlternateAddress returns the address to use for the next call.
	//
	// Returns types.ErrNoEndpointsAvailable when the list is empty.
	GetNextAlternateAddress() (string, error)

	// AlternateAddresses returns the current list in membership order.
	AlternateAddresses() []string

	// Close stops following the group.
	Close()
}

// Option configures a strategy.
type Option func(*addressBook)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(b *addressBook) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(b *addressBook) {
		b.metrics = m
	}
}

// addressBook is the alternate-address list shared by all strategies.
type addressBook struct {
	name    string
	group   types.Group
	logger  types.Logger
	metrics types.MetricsCollector

	mu        sync.RWMutex
	addresses []string
	remove    func()
}

func newAddressBook(name string, group types.Group, opts []Option) *addressBook {
	b := &addressBook{name: name, group: group}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.With(logging.OrNop(b.logger), "strategy", name, "group", group.Name())
	b.metrics = metrics.OrNop(b.metrics)

	b.refresh()
	b.remove = group.AddListener(types.GroupListenerFunc(func(types.GroupEvent) {
		b.refresh()
	}))

	return b
}

// refresh clears and repopulates the list from the group snapshot.
func (b *addressBook) refresh() {
	members := b.group.Snapshot()

	addresses := make([]string, 0, len(members))
	for _, m := range members {
		addr, err := decodeAddress(m.Payload)
		if err != nil {
			b.logger.Warn("skipping member with invalid endpoint", "member", m.ID, "error", err)
			continue
		}
		addresses = append(addresses, addr)
	}

	b.mu.Lock()
	b.addresses = addresses
	b.mu.Unlock()

	b.metrics.RecordAlternateAddresses(b.name, len(addresses))
	b.logger.Debug("alternate addresses refreshed", "count", len(addresses))
}

func (b *addressBook) Name() string {
	return b.name
}

func (b *addressBook) AlternateAddresses() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Clone(b.addresses)
}

func (b *addressBook) Close() {
	b.mu.Lock()
	remove := b.remove
	b.remove = nil
	b.mu.Unlock()

	if remove != nil {
		remove()
	}
}

// pick runs choose over the current list, recording the outcome.
func (b *addressBook) pick(choose func(addresses []string) string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.addresses) == 0 {
		b.metrics.RecordEndpointSelection(b.name, false)
		return "", fmt.Errorf("%w: group %s", types.ErrNoEndpointsAvailable, b.group.Name())
	}
	b.metrics.RecordEndpointSelection(b.name, true)

	return choose(b.addresses), nil
}

// decodeAddress validates a member payload as a UTF-8 absolute URI.
func decodeAddress(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("payload is not valid UTF-8")
	}

	raw := string(payload)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URI %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("URI %q has no scheme", raw)
	}

	return raw, nil
}
