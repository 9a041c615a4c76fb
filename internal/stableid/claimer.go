// Package stableid claims stable container IDs from a numbered pool in NATS KV.
//
// A task worker started without a configured container ID claims the lowest
// free "{prefix}-{n}" from the pool, so a restarted container gets the same ID
// back once its previous lease expired and assignment churn stays small.
package stableid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/types"
)

// Common errors returned by the claimer.
var (
	ErrNoAvailableID = errors.New("no available container ID in pool")
	ErrNotClaimed    = errors.New("container ID not claimed")
	ErrAlreadyClosed = errors.New("claimer already closed")
)

// Claimer handles stable ID claiming and renewal.
//
// IDs are leased with an atomic Create in a TTL bucket and renewed every
// ttl/3. The lease value is the claimer's session token, so a renewal that
// finds another session's value stops instead of stealing the ID back.
type Claimer struct {
	kv      jetstream.KeyValue
	pool    string
	prefix  string
	minID   int
	maxID   int
	ttl     time.Duration
	session string
	logger  types.Logger

	mu       sync.Mutex
	id       string
	revision uint64
	closed   bool
	renewing bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewClaimer creates a new stable ID claimer.
//
// Parameters:
//   - kv: TTL bucket holding the leases (entries expire after ttl)
//   - pool: Key prefix of the pool (e.g., kvutil.Keys{Root: "fabric"}.ContainerIDs())
//   - prefix: ID prefix (e.g., "container")
//   - minID, maxID: Inclusive number range of the pool
//   - ttl: Lease TTL, equal to the bucket TTL
//   - session: Session token written into the lease
//   - logger: Logger (nil for no-op)
//
// Example:
//
//	claimer := stableid.NewClaimer(kv, keys.ContainerIDs(), "container", 0, 99, 10*time.Second, session, logger)
//	id, err := claimer.Claim(ctx)
func NewClaimer(kv jetstream.KeyValue, pool, prefix string, minID, maxID int, ttl time.Duration, session string, logger types.Logger) *Claimer {
	return &Claimer{
		kv:      kv,
		pool:    pool,
		prefix:  prefix,
		minID:   minID,
		maxID:   maxID,
		ttl:     ttl,
		session: session,
		logger:  logging.OrNop(logger),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Claim leases the lowest free ID of the pool.
//
// Returns:
//   - string: Claimed ID (e.g., "container-5")
//   - error: ErrNoAvailableID if the pool is exhausted, ErrAlreadyClosed,
//     context error, or a store error
func (c *Claimer) Claim(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrAlreadyClosed
	}
	if c.id != "" {
		return c.id, nil
	}

	for n := c.minID; n <= c.maxID; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id := fmt.Sprintf("%s-%d", c.prefix, n)
		rev, err := c.kv.Create(ctx, c.key(id), []byte(c.session))
		if err == nil {
			c.id = id
			c.revision = rev
			c.logger.Info("stable ID claimed", "id", id, "attempts", n-c.minID+1)

			return id, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return "", natsutil.Classify(fmt.Errorf("failed to claim ID %s: %w", id, err))
		}
	}

	c.logger.Error("no available stable IDs in pool", "prefix", c.prefix, "min", c.minID, "max", c.maxID)

	return "", ErrNoAvailableID
}

// StartRenewal renews the lease every ttl/3 until Release.
//
// Returns:
//   - error: ErrNotClaimed if Claim has not succeeded, ErrAlreadyClosed after Release
func (c *Claimer) StartRenewal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.id == "" {
		return ErrNotClaimed
	}

	if c.renewing {
		return nil
	}
	c.renewing = true
	go c.renewalLoop()

	return nil
}

func (c *Claimer) renewalLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.ttl/3)
			err := c.renew(ctx)
			cancel()
			if err != nil {
				c.logger.Warn("failed to renew stable ID", "id", c.ID(), "error", err)
			}
		}
	}
}

func (c *Claimer) renew(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id == "" {
		return ErrNotClaimed
	}

	rev, err := c.kv.Update(ctx, c.key(c.id), []byte(c.session), c.revision)
	if err == nil {
		c.revision = rev
		return nil
	}
	if natsutil.IsConnectivityError(err) {
		return natsutil.Classify(err)
	}

	// The lease expired: take it again if nobody else did.
	rev, err = c.kv.Create(ctx, c.key(c.id), []byte(c.session))
	if err != nil {
		return fmt.Errorf("lease on %s lost: %w", c.id, err)
	}
	c.revision = rev

	return nil
}

// Release stops renewal and deletes the lease so the ID can be reused at once.
//
// Returns:
//   - error: ErrNotClaimed if nothing was claimed, ErrAlreadyClosed on repeated
//     calls, or the delete error
func (c *Claimer) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.id == "" {
		c.mu.Unlock()
		return ErrNotClaimed
	}
	c.closed = true
	close(c.stopCh)
	renewing := c.renewing
	c.mu.Unlock()

	if renewing {
		select {
		case <-c.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.kv.Delete(ctx, c.key(c.id), jetstream.LastRevision(c.revision))
	id := c.id
	c.id = ""
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete ID %s: %w", id, err)
	}

	return nil
}

// ID returns the claimed ID, or "" if none is held.
func (c *Claimer) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id
}

func (c *Claimer) key(id string) string {
	return kvutil.Join(c.pool, id)
}
