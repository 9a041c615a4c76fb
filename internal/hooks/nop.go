// Package hooks provides default hook implementations and an asynchronous
// dispatcher for types.Hooks.
package hooks

import (
	"context"

	"github.com/arloliu/fabric/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

var (
	_ func(context.Context, []string, []string) error       = (*NopHooks)(nil).OnAssignmentChanged
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, error) error                    = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnAssignmentChanged: h.OnAssignmentChanged,
		OnStateChanged:      h.OnStateChanged,
		OnError:             h.OnError,
	}
}

// OnAssignmentChanged is a no-op implementation.
func (h *NopHooks) OnAssignmentChanged(_ context.Context, _, _ []string) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _, _ types.State) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}

// Fill returns h with every nil callback replaced by its no-op counterpart.
func Fill(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnAssignmentChanged != nil {
		out.OnAssignmentChanged = h.OnAssignmentChanged
	}
	if h.OnStateChanged != nil {
		out.OnStateChanged = h.OnStateChanged
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}
