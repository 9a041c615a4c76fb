package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
	ErrNoMemberID     = errors.New("member ID not set")
)

// Publisher keeps one member registration alive in a TTL bucket.
//
// The registration is the member envelope (types.Member as JSON) stored under
// the member key. It is created atomically by Start and rewritten on every
// tick, which resets the entry's age; a process that stops ticking disappears
// once the bucket TTL elapses.
type Publisher struct {
	kv       jetstream.KeyValue
	key      string
	interval time.Duration
	metrics  types.MetricsCollector
	group    string
	onResult func(error)

	mu       sync.Mutex
	member   types.Member
	revision uint64
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a new registration publisher.
//
// The bucket TTL should be about 3x the interval so a member survives two
// missed refreshes.
//
// Parameters:
//   - kv: TTL bucket holding member registrations
//   - key: Member key (e.g., kvutil.MemberKey(group, id))
//   - member: Envelope to publish; ID and Session must be set
//   - interval: Refresh interval
//
// Example:
//
//	p := heartbeat.New(kv, kvutil.MemberKey(group, "w1"), types.Member{
//	    ID: "w1", Session: uuid.NewString(), Payload: payload,
//	}, 2*time.Second)
//	if err := p.Start(ctx); err != nil { ... }
//	defer p.Stop()
func New(kv jetstream.KeyValue, key string, member types.Member, interval time.Duration) *Publisher {
	return &Publisher{
		kv:       kv,
		key:      key,
		interval: interval,
		member:   member,
	}
}

// SetMetrics sets the metrics collector and the group label of refresh events.
//
// Must be called before Start().
func (p *Publisher) SetMetrics(metrics types.MetricsCollector, group string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics = metrics
	p.group = group
}

// SetOnResult registers fn to receive the result of every background refresh.
//
// Must be called before Start(). fn runs on the publisher goroutine.
func (p *Publisher) SetOnResult(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onResult = fn
}

// Start creates the registration and begins refreshing it in the background.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrNoMemberID, types.ErrMemberExists when a live
//     registration of another session holds the key, or a store error
//     (wrapping types.ErrConnectivity when the store is unreachable)
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.member.ID == "" {
		return ErrNoMemberID
	}

	if p.member.Joined.IsZero() {
		p.member.Joined = time.Now().UTC()
	}
	if err := p.create(ctx); err != nil {
		return err
	}

	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.refreshLoop(p.stopCh, p.doneCh)

	return nil
}

// Update replaces the member payload and writes it synchronously.
func (p *Publisher) Update(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}

	p.member.Payload = payload

	return p.refresh(ctx)
}

// Stop stops refreshing and deletes the registration.
//
// Blocks until the refresh goroutine exits. Deleting the key signals the
// departure immediately instead of waiting for TTL expiry.
//
// Returns:
//   - error: ErrNotStarted if not running, or the delete error
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	close(p.stopCh)
	doneCh := p.doneCh
	p.started = false
	p.mu.Unlock()

	<-doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p.mu.Lock()
	revision := p.revision
	p.mu.Unlock()

	err := p.kv.Delete(ctx, p.key, jetstream.LastRevision(revision))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		// The key may have been re-created by another session; leave it alone.
		if current, gerr := p.read(ctx); gerr == nil && current.Session != p.member.Session {
			return nil
		}

		return fmt.Errorf("stopped but failed to delete member %s: %w", p.member.ID, err)
	}

	return nil
}

// Member returns a copy of the published envelope.
func (p *Publisher) Member() types.Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.member
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Publisher) refreshLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.mu.Lock()
			err := p.refresh(ctx)
			metrics, group, onResult := p.metrics, p.group, p.onResult
			p.mu.Unlock()
			cancel()

			if metrics != nil {
				metrics.RecordMembershipRefresh(group, err == nil)
			}
			if onResult != nil {
				onResult(err)
			}
		}
	}
}

// create writes the envelope with an atomic create. Caller holds mu.
func (p *Publisher) create(ctx context.Context) error {
	data, err := p.encode()
	if err != nil {
		return err
	}

	rev, err := p.kv.Create(ctx, p.key, data)
	if err == nil {
		p.revision = rev
		return nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return natsutil.Classify(fmt.Errorf("failed to register member %s: %w", p.member.ID, err))
	}

	// A registration exists: only take it over if it is ours.
	entry, gerr := p.kv.Get(ctx, p.key)
	if gerr != nil {
		if errors.Is(gerr, jetstream.ErrKeyNotFound) {
			return p.create(ctx)
		}

		return natsutil.Classify(fmt.Errorf("failed to read member %s: %w", p.member.ID, gerr))
	}

	var current types.Member
	if json.Unmarshal(entry.Value(), &current) != nil || current.Session != p.member.Session {
		return fmt.Errorf("%w: %s", types.ErrMemberExists, p.member.ID)
	}

	rev, err = p.kv.Update(ctx, p.key, data, entry.Revision())
	if err != nil {
		return natsutil.Classify(fmt.Errorf("failed to reclaim member %s: %w", p.member.ID, err))
	}
	p.revision = rev

	return nil
}

// refresh rewrites the envelope on the last known revision, re-creating the
// key if it expired. Caller holds mu.
func (p *Publisher) refresh(ctx context.Context) error {
	data, err := p.encode()
	if err != nil {
		return err
	}

	rev, err := p.kv.Update(ctx, p.key, data, p.revision)
	if err == nil {
		p.revision = rev
		return nil
	}
	if natsutil.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		// no answer within the refresh timeout: the store is unreachable, not rewritten
		return natsutil.ClassifyTimeout(context.Background(), fmt.Errorf("failed to refresh member %s: %w", p.member.ID, err))
	}

	// Revision mismatch: the key expired or was rewritten.
	return p.create(ctx)
}

func (p *Publisher) read(ctx context.Context) (types.Member, error) {
	entry, err := p.kv.Get(ctx, p.key)
	if err != nil {
		return types.Member{}, err
	}

	var m types.Member
	if err := json.Unmarshal(entry.Value(), &m); err != nil {
		return types.Member{}, fmt.Errorf("failed to unmarshal member: %w", err)
	}

	return m, nil
}

func (p *Publisher) encode() ([]byte, error) {
	data, err := json.Marshal(p.member)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal member %s: %w", p.member.ID, err)
	}

	return data, nil
}
