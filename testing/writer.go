package testing

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/fabric/types"
)

// RecordingWriter is an in-memory types.AssignmentWriter.
//
// It keeps the last assignment written per member and can be told to fail
// writes for specific members.
type RecordingWriter struct {
	mu      sync.Mutex
	writes  int
	records map[string][]string
	failing map[string]error
}

var _ types.AssignmentWriter = (*RecordingWriter)(nil)

// NewRecordingWriter creates an empty RecordingWriter.
func NewRecordingWriter() *RecordingWriter {
	return &RecordingWriter{
		records: make(map[string][]string),
		failing: make(map[string]error),
	}
}

// FailFor makes every later write for member return err (wrapped in
// types.ErrAssignmentWrite). A nil err clears the failure.
func (w *RecordingWriter) FailFor(member string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err == nil {
		delete(w.failing, member)
		return
	}
	w.failing[member] = err
}

// WriteAssignment records partitionIDs as the assignment of member.
func (w *RecordingWriter) WriteAssignment(_ context.Context, taskID, member string, partitionIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err, ok := w.failing[member]; ok {
		return fmt.Errorf("%w: task %s member %s: %w", types.ErrAssignmentWrite, taskID, member, err)
	}

	w.writes++
	w.records[member] = slices.Clone(partitionIDs)

	return nil
}

// Assignments returns a copy of the last written assignment per member.
func (w *RecordingWriter) Assignments() map[string][]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string][]string, len(w.records))
	for m, ids := range w.records {
		out[m] = slices.Clone(ids)
	}

	return out
}

// Members returns the members written so far, sorted.
func (w *RecordingWriter) Members() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Sorted(maps.Keys(w.records))
}

// Writes returns the number of successful writes.
func (w *RecordingWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.writes
}
