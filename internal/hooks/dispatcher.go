package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/fabric/types"
)

// Dispatcher runs hooks in background goroutines so they never block the
// caller. Hook errors are logged and otherwise ignored.
type Dispatcher struct {
	hooks  types.Hooks
	logger types.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for h. Nil callbacks become no-ops.
func NewDispatcher(h *types.Hooks, logger types.Logger) *Dispatcher {
	return &Dispatcher{hooks: Fill(h), logger: logger}
}

// StateChanged fires OnStateChanged.
func (d *Dispatcher) StateChanged(ctx context.Context, from, to types.State) {
	d.run("OnStateChanged", func() error { return d.hooks.OnStateChanged(ctx, from, to) })
}

// AssignmentChanged fires OnAssignmentChanged with copies of added and removed.
func (d *Dispatcher) AssignmentChanged(ctx context.Context, added, removed []string) {
	added, removed = slices.Clone(added), slices.Clone(removed)
	d.run("OnAssignmentChanged", func() error { return d.hooks.OnAssignmentChanged(ctx, added, removed) })
}

// Error fires OnError.
func (d *Dispatcher) Error(ctx context.Context, err error) {
	d.run("OnError", func() error { return d.hooks.OnError(ctx, err) })
}

// Wait blocks until every fired hook returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(name string, fn func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(); err != nil {
			d.logger.Warn("hook returned error", "hook", name, "error", err)
		}
	}()
}
