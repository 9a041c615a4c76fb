package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/fabric/loadbalance"
	"github.com/arloliu/fabric/types"
)

// Matcher reports whether a failure allows fail-over.
type Matcher func(err error) bool

// MatchError matches errors wrapping target (errors.Is).
func MatchError(target error) Matcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// MatchType matches errors with a T in their chain (errors.As).
func MatchType[T error]() Matcher {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// MatchFunc matches errors for which fn returns true.
func MatchFunc(fn func(error) bool) Matcher {
	return Matcher(fn)
}

// FailOverSelector is a TargetSelector that moves a call to another address
// when it fails with an allow-listed error.
type FailOverSelector struct {
	*TargetSelector
	matchers []Matcher
}

// NewFailOver creates a fail-over selector over strategy.
func NewFailOver(strategy loadbalance.Strategy, allow []Matcher, opts ...Option) *FailOverSelector {
	return &FailOverSelector{TargetSelector: New(strategy, opts...), matchers: allow}
}

// Allowed reports whether err is in the allow-list.
func (s *FailOverSelector) Allowed(err error) bool {
	if err == nil {
		return false
	}
	for _, m := range s.matchers {
		if m(err) {
			return true
		}
	}

	return false
}

// HandleFailure advances call to an untried address if err is allow-listed.
//
// On success the failed conduit is released and the next SelectConduit opens
// the new address. Otherwise the selection is left untouched.
//
// Returns:
//   - bool: true if the call was advanced
func (s *FailOverSelector) HandleFailure(call *Call, err error) bool {
	if !s.Allowed(err) {
		return false
	}

	call.mu.Lock()
	defer call.mu.Unlock()

	if call.conduit != nil {
		call.tried[call.conduit.Address()] = struct{}{}
	}

	next := s.untried(call)
	if next == "" {
		s.logger.Warn("fail-over exhausted", "call", call.id, "tried", len(call.tried), "error", err)
		return false
	}

	if call.conduit != nil {
		s.metrics.RecordFailOver(call.conduit.Address())
		s.logger.Info("failing over", "call", call.id, "from", call.conduit.Address(), "to", next, "error", err)
	}
	s.releaseLocked(call)
	s.track(call, false)
	call.next = next

	return true
}

// Invoke runs fn with the call's conduit, failing over on allow-listed errors
// until fn succeeds, fails with another error (returned unmodified), or every
// address has been tried (types.ErrFailOverExhausted wrapping the last error).
//
// The call is completed before Invoke returns.
func (s *FailOverSelector) Invoke(ctx context.Context, call *Call, fn func(ctx context.Context, c Conduit) error) error {
	defer s.Complete(call)

	var lastErr error
	for {
		conduit, err := s.SelectConduit(ctx, call)
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %w", types.ErrFailOverExhausted, errors.Join(lastErr, err))
			}

			return err
		}

		err = fn(ctx, conduit)
		if err == nil {
			return nil
		}
		if !s.Allowed(err) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.HandleFailure(call, err) {
			return fmt.Errorf("%w: %w", types.ErrFailOverExhausted, err)
		}
	}
}

// untried picks the strategy's next address if untried, else the first
// untried address in the list. Caller holds call.mu.
func (s *FailOverSelector) untried(call *Call) string {
	if addr, err := s.strategy.GetNextAlternateAddress(); err == nil {
		if _, done := call.tried[addr]; !done {
			return addr
		}
	}

	for _, addr := range s.strategy.AlternateAddresses() {
		if _, done := call.tried[addr]; !done {
			return addr
		}
	}

	return ""
}
