package fabric

import "github.com/arloliu/fabric/types"

// Sentinel errors re-exported from the types package.
var (
	ErrInvalidConfig           = types.ErrInvalidConfig
	ErrInvalidID               = types.ErrInvalidID
	ErrNATSConnectionRequired  = types.ErrNATSConnectionRequired
	ErrPartitionSourceRequired = types.ErrPartitionSourceRequired
	ErrUnknownPolicy           = types.ErrUnknownPolicy
	ErrUnknownListener         = types.ErrUnknownListener
	ErrUnknownStrategy         = types.ErrUnknownStrategy

	ErrAlreadyStarted = types.ErrAlreadyStarted
	ErrNotStarted     = types.ErrNotStarted
	ErrStopped        = types.ErrStopped

	ErrConnectivity    = types.ErrConnectivity
	ErrMemberExists    = types.ErrMemberExists
	ErrNotJoined       = types.ErrNotJoined
	ErrAssignmentWrite = types.ErrAssignmentWrite
	ErrPartitionData   = types.ErrPartitionData

	ErrNoEndpointsAvailable = types.ErrNoEndpointsAvailable
	ErrNoConduitInitiator   = types.ErrNoConduitInitiator
	ErrFailOverExhausted    = types.ErrFailOverExhausted
)

// ValidateID checks that id can be used as a single coordination-store key token.
func ValidateID(id string) error {
	return types.ValidateID(id)
}
