package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/internal/watch"
	"github.com/arloliu/fabric/types"
)

// KV is a partition source over the direct children of a key prefix.
//
// Each child key "<path>.<partition id>" is one partition; its value is a JSON
// object whose fields become the partition data. Non-string field values are
// kept in their JSON form.
type KV struct {
	kv     jetstream.KeyValue
	path   string
	logger types.Logger
}

var _ types.PartitionSource = (*KV)(nil)

// NewKV creates a source reading the children of path in kv.
func NewKV(kv jetstream.KeyValue, path string, logger types.Logger) *KV {
	return &KV{kv: kv, path: path, logger: logging.OrNop(logger)}
}

// ListPartitions reads all partitions below the path.
//
// Partitions with malformed data are returned with an empty data map.
func (s *KV) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	entries, err := watch.Snapshot(ctx, s.kv, s.pattern())
	if err != nil {
		return nil, natsutil.Classify(fmt.Errorf("failed to list partitions under %s: %w", s.path, err))
	}

	out := make([]types.Partition, 0, len(entries))
	for _, entry := range entries {
		id, ok := kvutil.ChildOf(s.path, entry.Key())
		if !ok {
			continue
		}

		data, err := DecodeData(entry.Value())
		if err != nil {
			s.logger.Warn("malformed partition data, using empty data", "partition", id, "error", err)
		}
		out = append(out, types.Partition{ID: id, Data: data})
	}

	return out, nil
}

// Subscribe watches the path and reports additions, data changes and removals.
//
// PartitionsInitialized is delivered once the initial replay ends; changes
// replayed before that are delivered as PartitionAdded.
func (s *KV) Subscribe(ctx context.Context, fn func(types.PartitionEvent)) (func(), error) {
	stop, err := watch.Subscribe(ctx, s.kv, s.pattern(), func(entry jetstream.KeyValueEntry) {
		if entry == nil {
			fn(types.PartitionEvent{Type: types.PartitionsInitialized})
			return
		}

		id, ok := kvutil.ChildOf(s.path, entry.Key())
		if !ok {
			return
		}

		if entry.Operation() == jetstream.KeyValuePut {
			fn(types.PartitionEvent{Type: types.PartitionAdded, PartitionID: id})
		} else {
			fn(types.PartitionEvent{Type: types.PartitionRemoved, PartitionID: id})
		}
	})
	if err != nil {
		return nil, natsutil.Classify(err)
	}

	return stop, nil
}

// Put creates or replaces a partition.
func (s *KV) Put(ctx context.Context, p types.Partition) error {
	if err := types.ValidateID(p.ID); err != nil {
		return err
	}

	data, err := json.Marshal(p.WithData().Data)
	if err != nil {
		return fmt.Errorf("failed to marshal partition %s: %w", p.ID, err)
	}

	if _, err := s.kv.Put(ctx, kvutil.Join(s.path, p.ID), data); err != nil {
		return natsutil.Classify(fmt.Errorf("failed to put partition %s: %w", p.ID, err))
	}

	return nil
}

// Delete removes a partition. Missing partitions are ignored.
func (s *KV) Delete(ctx context.Context, id string) error {
	err := s.kv.Delete(ctx, kvutil.Join(s.path, id))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return natsutil.Classify(fmt.Errorf("failed to delete partition %s: %w", id, err))
	}

	return nil
}

func (s *KV) pattern() string {
	return kvutil.Join(s.path, "*")
}

// DecodeData parses a partition record into a data map.
//
// The result is never nil. On error it is empty and the error wraps
// types.ErrPartitionData.
func DecodeData(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, fmt.Errorf("%w: %w", types.ErrPartitionData, err)
	}

	for k, v := range fields {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
		} else {
			out[k] = string(v)
		}
	}

	return out, nil
}
