package types

import (
	"encoding/json"
	"fmt"
)

// WorkerNode is the record describing a task worker.
//
// The same record serves two purposes: it is the payload a worker publishes when
// joining its task group (Partitions empty), and it is the persisted assignment
// record written by the balancing policy and watched by the worker itself.
type WorkerNode struct {
	// Container is the worker (container) identity, equal to its group member ID.
	Container string `json:"container"`

	// URL is a reference to the worker's definition or endpoint.
	URL string `json:"url"`

	// Partitions lists the partition IDs assigned to the worker.
	Partitions []string `json:"partitions"`
}

// Encode serializes the node as JSON. A nil partition list is encoded as [].
func (n WorkerNode) Encode() ([]byte, error) {
	if n.Partitions == nil {
		n.Partitions = []string{}
	}

	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal worker node %s: %w", n.Container, err)
	}

	return data, nil
}

// DecodeWorkerNode parses a JSON worker node record.
//
// Parameters:
//   - data: JSON encoded WorkerNode
//
// Returns:
//   - WorkerNode: Decoded node with a non-nil partition list
//   - error: Decoding error
func DecodeWorkerNode(data []byte) (WorkerNode, error) {
	var n WorkerNode
	if err := json.Unmarshal(data, &n); err != nil {
		return WorkerNode{}, fmt.Errorf("failed to unmarshal worker node: %w", err)
	}
	if n.Partitions == nil {
		n.Partitions = []string{}
	}

	return n, nil
}
