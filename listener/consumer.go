package listener

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/types"
)

// TypeConsumer is the type tag of the Consumer listener.
const TypeConsumer = "consumer"

// ConsumerConfig configures the consumer listener.
type ConsumerConfig struct {
	// Stream is the JetStream stream carrying partition messages.
	Stream string `yaml:"stream"`

	// SubjectPrefix is prepended to partition ids: a started partition p
	// filters "<SubjectPrefix>.p".
	SubjectPrefix string `yaml:"subjectPrefix"`

	// ConsumerPrefix names the durable consumer "<ConsumerPrefix>-<worker id>".
	// Default: "fabric".
	ConsumerPrefix string `yaml:"consumerPrefix"`

	// AckWait is the consumer ack wait. Default: 30s.
	AckWait time.Duration `yaml:"ackWait"`

	// MaxDeliver is the maximum delivery count. Default: 5.
	MaxDeliver int `yaml:"maxDeliver"`

	// MaxRetries bounds CreateOrUpdateConsumer attempts. Default: 3.
	MaxRetries int `yaml:"maxRetries"`

	// RetryBackoff is the delay between attempts. Default: 200ms.
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

func (c *ConsumerConfig) setDefaults() {
	if c.ConsumerPrefix == "" {
		c.ConsumerPrefix = "fabric"
	}
	if c.AckWait == 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// MessageHandler processes messages of started partitions.
//
// A nil error acks the message; an error naks it for redelivery.
type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// Consumer maps the worker's started partitions onto the FilterSubjects of a
// single durable pull consumer.
//
// The consumer is reconciled on every Start and Stop with CreateOrUpdateConsumer,
// so message delivery follows the assignment without re-subscribing. When the
// started set becomes empty the consumer is deleted, since a consumer without
// filter subjects would receive the whole stream.
type Consumer struct {
	js       jetstream.JetStream
	cfg      ConsumerConfig
	workerID string
	handler  MessageHandler
	logger   types.Logger
	tracker  *tracker

	mu       sync.Mutex
	subjects []string
	consume  jetstream.ConsumeContext
}

var _ types.PartitionListener = (*Consumer)(nil)

// NewConsumer creates a consumer listener for workerID.
//
// handler may be nil, in which case the consumer is maintained but nothing in
// this process pulls from it.
//
// Returns:
//   - error: types.ErrInvalidConfig for a missing JetStream, stream, subject prefix or worker id
func NewConsumer(js jetstream.JetStream, workerID string, cfg ConsumerConfig, handler MessageHandler, logger types.Logger) (*Consumer, error) {
	switch {
	case js == nil:
		return nil, fmt.Errorf("%w: consumer listener requires JetStream", types.ErrInvalidConfig)
	case cfg.Stream == "":
		return nil, fmt.Errorf("%w: consumer listener requires a stream", types.ErrInvalidConfig)
	case cfg.SubjectPrefix == "":
		return nil, fmt.Errorf("%w: consumer listener requires a subject prefix", types.ErrInvalidConfig)
	case workerID == "":
		return nil, fmt.Errorf("%w: consumer listener requires a worker id", types.ErrInvalidConfig)
	}
	cfg.setDefaults()

	return &Consumer{
		js:       js,
		cfg:      cfg,
		workerID: workerID,
		handler:  handler,
		logger:   logging.OrNop(logger),
		tracker:  newTracker(),
	}, nil
}

// Type returns "consumer".
func (c *Consumer) Type() string { return TypeConsumer }

// Start adds the partitions' subjects to the consumer filter.
func (c *Consumer) Start(ctx context.Context, taskID, _ string, partitions []types.Partition) error {
	fresh := c.tracker.fresh(partitions)
	if len(fresh) == 0 {
		return nil
	}

	c.tracker.add(fresh...)
	if err := c.reconcile(ctx); err != nil {
		c.tracker.remove(fresh...)
		c.logger.Error("failed to start partitions", "task", taskID, "partitions", types.PartitionIDs(fresh), "error", err)

		return err
	}
	c.logger.Info("partitions started", "task", taskID, "partitions", types.PartitionIDs(fresh))

	return nil
}

// Stop removes the partitions' subjects from the consumer filter.
func (c *Consumer) Stop(ctx context.Context, taskID, _ string, partitions []types.Partition) error {
	started, unknown := c.tracker.known(partitions)
	for _, p := range unknown {
		c.logger.Debug("stop of partition never started, ignoring", "task", taskID, "partition", p.ID)
	}
	if len(started) == 0 {
		return nil
	}

	c.tracker.remove(started...)
	if err := c.reconcile(ctx); err != nil {
		c.tracker.add(started...)
		c.logger.Error("failed to stop partitions", "task", taskID, "partitions", types.PartitionIDs(started), "error", err)

		return err
	}
	c.logger.Info("partitions stopped", "task", taskID, "partitions", types.PartitionIDs(started))

	return nil
}

// Destroy stops consuming and deletes the durable consumer.
func (c *Consumer) Destroy(ctx context.Context) error {
	c.tracker.remove(c.tracker.all()...)

	return c.reconcile(ctx)
}

// Subjects returns the filter subjects last applied.
func (c *Consumer) Subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.subjects)
}

// Durable returns the durable consumer name.
func (c *Consumer) Durable() string {
	return sanitizeConsumerName(c.cfg.ConsumerPrefix + "-" + c.workerID)
}

func (c *Consumer) reconcile(ctx context.Context) error {
	ids := c.tracker.ids()
	subjects := make([]string, len(ids))
	for i, id := range ids {
		subjects[i] = kvutil.Join(c.cfg.SubjectPrefix, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Equal(subjects, c.subjects) && (len(subjects) > 0 || c.consume == nil) {
		return nil
	}

	if len(subjects) == 0 {
		return c.deleteLocked(ctx)
	}

	cfg := jetstream.ConsumerConfig{
		Name:           c.Durable(),
		Durable:        c.Durable(),
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        c.cfg.AckWait,
		MaxDeliver:     c.cfg.MaxDeliver,
	}

	var (
		cons    jetstream.Consumer
		lastErr error
	)
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		cons, lastErr = c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, cfg)
		if lastErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryBackoff):
		}
	}
	if lastErr != nil {
		return natsutil.Classify(fmt.Errorf("failed to update consumer %s after %d attempts: %w", cfg.Durable, c.cfg.MaxRetries, lastErr))
	}
	c.subjects = subjects

	if c.handler != nil && c.consume == nil {
		cc, err := cons.Consume(c.handle)
		if err != nil {
			return natsutil.Classify(fmt.Errorf("failed to consume from %s: %w", cfg.Durable, err))
		}
		c.consume = cc
	}

	return nil
}

func (c *Consumer) deleteLocked(ctx context.Context) error {
	if c.consume != nil {
		c.consume.Stop()
		c.consume = nil
	}
	c.subjects = nil

	err := c.js.DeleteConsumer(ctx, c.cfg.Stream, c.Durable())
	if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return natsutil.Classify(fmt.Errorf("failed to delete consumer %s: %w", c.Durable(), err))
	}

	return nil
}

func (c *Consumer) handle(msg jetstream.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckWait)
	defer cancel()

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Warn("message handler failed", "subject", msg.Subject(), "error", err)
		if nerr := msg.Nak(); nerr != nil {
			c.logger.Debug("failed to nak message", "subject", msg.Subject(), "error", nerr)
		}

		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Debug("failed to ack message", "subject", msg.Subject(), "error", err)
	}
}

// sanitizeConsumerName replaces characters not allowed in consumer names.
func sanitizeConsumerName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', r == '/', r == '\\', r <= ' ', r == 127:
			return '_'
		default:
			return r
		}
	}, name)
}
