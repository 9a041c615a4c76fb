package fabric

import (
	"github.com/arloliu/fabric/listener"
	"github.com/arloliu/fabric/types"
)

// Re-export types from the types package.
//
// Internal packages depend on types only, never on the root package, so
// these aliases give users fabric.Partition, fabric.Logger and so on without
// an import cycle.
type (
	State      = types.State
	Partition  = types.Partition
	Member     = types.Member
	WorkerNode = types.WorkerNode
	GroupEvent = types.GroupEvent
)

// Re-export interfaces from the types package for convenience.
type (
	Group             = types.Group
	GroupListener     = types.GroupListener
	Membership        = types.Membership
	BalancingPolicy   = types.BalancingPolicy
	AssignmentWriter  = types.AssignmentWriter
	PartitionListener = types.PartitionListener
	PartitionSource   = types.PartitionSource
	PartitionEvent    = types.PartitionEvent
	ElectionAgent     = types.ElectionAgent
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
	Hooks             = types.Hooks
	MessageHandler    = listener.MessageHandler
)

// Re-export State constants.
const (
	StateCreated = types.StateCreated
	StateStarted = types.StateStarted
	StateStopped = types.StateStopped
)

// Re-export GroupEvent constants.
const (
	GroupConnected    = types.GroupConnected
	GroupDisconnected = types.GroupDisconnected
	GroupChanged      = types.GroupChanged
)
