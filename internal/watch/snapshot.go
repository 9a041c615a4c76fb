package watch

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Snapshot reads the current entries matching pattern.
//
// It replays the pattern with a short-lived watcher (deletes ignored) and
// returns once the initial replay ends, which costs one round trip instead of
// one Get per key.
//
// Parameters:
//   - ctx: Context for cancellation
//   - kv: Bucket to read
//   - pattern: Key pattern (e.g., "partitions.orders.*")
//
// Returns:
//   - []jetstream.KeyValueEntry: Live entries in stream order
//   - error: Watch error or context cancellation
func Snapshot(ctx context.Context, kv jetstream.KeyValue, pattern string) ([]jetstream.KeyValueEntry, error) {
	w, err := kv.Watch(ctx, pattern, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", pattern, err)
	}
	defer func() { _ = w.Stop() }()

	var entries []jetstream.KeyValueEntry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return nil, fmt.Errorf("watcher for %s closed before replay finished", pattern)
			}
			if entry == nil {
				return entries, nil
			}
			entries = append(entries, entry)
		}
	}
}

// Subscribe delivers every change of keys matching pattern to fn, including
// the initial replay, until ctx is cancelled or the returned stop is called.
//
// fn receives nil once when the initial replay ends. It runs on a dedicated
// goroutine and must not block for long.
func Subscribe(ctx context.Context, kv jetstream.KeyValue, pattern string, fn func(jetstream.KeyValueEntry)) (stop func(), err error) {
	w, err := kv.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", pattern, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				fn(entry)
			}
		}
	}()

	return func() {
		cancel()
		_ = w.Stop()
		<-done
	}, nil
}
