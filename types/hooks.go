package types

import "context"

// Hooks defines callbacks for TaskManager lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines so
// they never block the executor or the store's notification goroutines. Hooks
// receive the manager's lifecycle context, which is cancelled during Stop.
//
// Hook errors are logged but never fail manager operations.
//
// Example:
//
//	hooks := &fabric.Hooks{
//	    OnAssignmentChanged: func(ctx context.Context, added, removed []string) error {
//	        log.Printf("started %v, stopped %v", added, removed)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnAssignmentChanged is called after the partition listener applied a delta.
	// added: partition IDs newly assigned to this worker
	// removed: partition IDs no longer assigned to this worker
	OnAssignmentChanged func(ctx context.Context, added, removed []string) error

	// OnStateChanged is called when the manager transitions state.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
