// Package watch observes key patterns in NATS KV with a hybrid of KV watchers
// and periodic polling.
//
// TTL expiry of a key produces no watch event, so watching alone cannot notice
// a crashed member. The Monitor therefore combines:
//   - Watcher (primary): fast detection via NATS KV Watch, debounced
//   - Polling (fallback): a full check every interval
//
// Both sources funnel into a single goroutine, so the change callback is never
// invoked concurrently with itself.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// DefaultDebounce is the delay coalescing bursts of watch events into one check.
const DefaultDebounce = 100 * time.Millisecond

// Monitor invokes a callback whenever keys matching a pattern may have changed.
type Monitor struct {
	kv       jetstream.KeyValue
	pattern  string
	interval time.Duration
	debounce time.Duration
	onChange func(ctx context.Context) error
	logger   types.Logger

	trigger chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewMonitor creates a new monitor.
//
// Parameters:
//   - kv: Bucket to observe
//   - pattern: Watch pattern (e.g., "{group}.>")
//   - interval: Polling interval; the callback also runs this often without events
//   - onChange: Callback invoked for each (debounced) change and poll
//   - logger: Logger for monitoring events
func NewMonitor(
	kv jetstream.KeyValue,
	pattern string,
	interval time.Duration,
	onChange func(ctx context.Context) error,
	logger types.Logger,
) *Monitor {
	return &Monitor{
		kv:       kv,
		pattern:  pattern,
		interval: interval,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logging.OrNop(logger),
		trigger:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}
}

// Start begins monitoring in a background goroutine.
//
// The callback runs once immediately, then on every debounced watch event and
// every polling interval until Stop is called or ctx is cancelled.
//
// Returns:
//   - error: types.ErrStopped if already stopped, types.ErrAlreadyStarted if running
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return types.ErrStopped
	}
	if m.started {
		return types.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true

	go m.run(runCtx)

	return nil
}

// Stop stops the monitor and waits for the monitor goroutine to exit.
//
// Safe to call multiple times.
//
// Returns:
//   - error: types.ErrNotStarted if Stop is called before Start
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return types.ErrNotStarted
	}
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	<-m.doneCh

	return nil
}

// Trigger schedules a check without waiting for a watch event or the next poll.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	events := make(chan struct{}, 1)
	watcher, err := m.kv.Watch(ctx, m.pattern)
	if err != nil {
		m.logger.Warn("failed to start watcher, falling back to polling only", "pattern", m.pattern, "error", err)
	} else {
		defer func() {
			if err := watcher.Stop(); err != nil {
				m.logger.Debug("failed to stop watcher", "pattern", m.pattern, "error", err)
			}
		}()
		go m.forward(ctx, watcher, events)
	}

	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(m.debounce)
	debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.trigger:
			m.check(ctx)
		case <-events:
			if !pending {
				pending = true
				debounce.Reset(m.debounce)
			}
		case <-debounce.C:
			pending = false
			m.check(ctx)
		}
	}
}

// forward turns watcher entries into coalesced event signals.
func (m *Monitor) forward(ctx context.Context, watcher jetstream.KeyWatcher, events chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// initial replay done
				continue
			}
			m.logger.Debug("watcher: received entry", "key", entry.Key(), "operation", entry.Operation())
			select {
			case events <- struct{}{}:
			default:
			}
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := m.onChange(ctx); err != nil {
		m.logger.Warn("change check failed", "pattern", m.pattern, "error", err)
	}
}

// String implements fmt.Stringer for log output.
func (m *Monitor) String() string {
	return fmt.Sprintf("watch.Monitor(%s)", m.pattern)
}
