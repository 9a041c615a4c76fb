package listener

import (
	"context"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// TypeLog is the type tag of the Log listener.
const TypeLog = "log"

// Log is a listener that only records and logs partition transitions.
type Log struct {
	logger  types.Logger
	tracker *tracker
}

var _ types.PartitionListener = (*Log)(nil)

// NewLog creates a log listener.
func NewLog(logger types.Logger) *Log {
	return &Log{logger: logging.OrNop(logger), tracker: newTracker()}
}

// Type returns "log".
func (l *Log) Type() string { return TypeLog }

// Start records the partitions not started yet.
func (l *Log) Start(_ context.Context, taskID, _ string, partitions []types.Partition) error {
	for _, p := range l.tracker.fresh(partitions) {
		l.tracker.add(p)
		l.logger.Info("partition started", "task", taskID, "partition", p.ID)
	}

	return nil
}

// Stop forgets the given partitions.
func (l *Log) Stop(_ context.Context, taskID, _ string, partitions []types.Partition) error {
	started, unknown := l.tracker.known(partitions)
	for _, p := range unknown {
		l.logger.Debug("stop of partition never started, ignoring", "task", taskID, "partition", p.ID)
	}
	for _, p := range started {
		l.tracker.remove(p)
		l.logger.Info("partition stopped", "task", taskID, "partition", p.ID)
	}

	return nil
}

// Destroy forgets every partition.
func (l *Log) Destroy(_ context.Context) error {
	started := l.tracker.all()
	l.tracker.remove(started...)
	l.logger.Info("listener destroyed", "partitions", len(started))

	return nil
}

// Started returns the started partition ids, sorted.
func (l *Log) Started() []string {
	return l.tracker.ids()
}
