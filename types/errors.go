package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the fabric library.
//
// Check with errors.Is. Components wrap external errors with context using
// fmt.Errorf("%s: %w", msg, err) and wrap sentinels the same way.

// Configuration errors - fatal at startup.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidID is returned when an identifier cannot be used as a key token.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNATSConnectionRequired is returned when the NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrPartitionSourceRequired is returned when the partition source is nil.
	ErrPartitionSourceRequired = errors.New("partition source is required")

	// ErrUnknownPolicy is returned when no balancing policy is registered for a type tag.
	ErrUnknownPolicy = errors.New("unknown balancing policy type")

	// ErrUnknownListener is returned when no partition listener is registered for a type tag.
	ErrUnknownListener = errors.New("unknown partition listener type")

	// ErrUnknownStrategy is returned when no load-balance strategy is registered for a type tag.
	ErrUnknownStrategy = errors.New("unknown load balance strategy type")
)

// Lifecycle errors.
var (
	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when an operation requires a started component.
	ErrNotStarted = errors.New("not started")

	// ErrStopped is returned when Start is called on a stopped component.
	ErrStopped = errors.New("already stopped")
)

// Coordination errors.
var (
	// ErrConnectivity indicates the coordination store is unreachable or the
	// session expired. Recoverable: the component re-syncs once the store recovers.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrMemberExists is returned when another live registration holds the member ID.
	ErrMemberExists = errors.New("member already registered")

	// ErrNotJoined is returned when operating on a membership that is not (or no longer) joined.
	ErrNotJoined = errors.New("member not joined")

	// ErrAssignmentWrite indicates a failure writing one member's assignment.
	// Logged per member; never aborts the rebalance of other members.
	ErrAssignmentWrite = errors.New("failed to write assignment")

	// ErrPartitionData indicates malformed or missing partition data.
	// The partition falls back to an empty data map.
	ErrPartitionData = errors.New("malformed partition data")

	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// Load balancing and transport selection errors.
var (
	// ErrNoEndpointsAvailable is returned when the alternate address list is empty.
	ErrNoEndpointsAvailable = errors.New("no endpoints available")

	// ErrNoConduitInitiator is returned when no conduit initiator supports an address.
	ErrNoConduitInitiator = errors.New("no conduit initiator for address")

	// ErrFailOverExhausted is returned when every alternate address failed.
	ErrFailOverExhausted = errors.New("fail-over exhausted all addresses")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
