package policy

import (
	"fmt"
	"sort"

	"github.com/arloliu/fabric/types"
)

// Factory constructs a policy writing through writer.
type Factory func(writer types.AssignmentWriter, logger types.Logger) types.BalancingPolicy

// Registry maps policy type tags to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in policies.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		TypeEven: func(w types.AssignmentWriter, l types.Logger) types.BalancingPolicy {
			return NewEven(w, l)
		},
		TypeConsistentHash: func(w types.AssignmentWriter, l types.Logger) types.BalancingPolicy {
			return NewConsistentHash(w, l)
		},
	}}
}

// Register adds or replaces the factory of typ.
func (r *Registry) Register(typ string, f Factory) {
	r.factories[typ] = f
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)

	return out
}

// New constructs the policy registered as typ.
//
// Returns:
//   - error: types.ErrUnknownPolicy if typ is not registered
func (r *Registry) New(typ string, writer types.AssignmentWriter, logger types.Logger) (types.BalancingPolicy, error) {
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", types.ErrUnknownPolicy, typ, r.Types())
	}

	return f(writer, logger), nil
}

// New constructs a built-in policy by type tag.
func New(typ string, writer types.AssignmentWriter, logger types.Logger) (types.BalancingPolicy, error) {
	return NewRegistry().New(typ, writer, logger)
}
