package types

import "fmt"

// Partition represents a unit of work to be assigned to exactly one worker.
//
// Partitions are created by a partition source (for example a watched key prefix
// in the coordination store); the rebalancer never creates or deletes them.
type Partition struct {
	// ID uniquely identifies the partition within its source.
	// It must be a single coordination-store key token (see ValidateID).
	ID string `json:"id"`

	// Data holds the partition's key-value data (e.g., template variables).
	// Never nil for partitions handed to a PartitionListener.
	Data map[string]string `json:"data,omitempty"`
}

// WithData returns a copy of the partition whose Data is guaranteed non-nil.
func (p Partition) WithData() Partition {
	if p.Data == nil {
		p.Data = map[string]string{}
	}

	return p
}

// PartitionIDs extracts partition IDs preserving input order.
//
// Parameters:
//   - partitions: Partitions to extract IDs from
//
// Returns:
//   - []string: IDs in the same order as partitions
func PartitionIDs(partitions []Partition) []string {
	ids := make([]string, len(partitions))
	for i, p := range partitions {
		ids[i] = p.ID
	}

	return ids
}

// Diff computes the set difference between two partition ID lists.
//
// Duplicates are ignored. The returned slices keep the order in which IDs appear
// in their source list, and are never nil.
//
// Parameters:
//   - old: Previously assigned partition IDs
//   - cur: Newly assigned partition IDs
//
// Returns:
//   - added: IDs in cur but not in old
//   - removed: IDs in old but not in cur
func Diff(old, cur []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, id := range old {
		oldSet[id] = struct{}{}
	}
	curSet := make(map[string]struct{}, len(cur))
	for _, id := range cur {
		curSet[id] = struct{}{}
	}

	added = []string{}
	for _, id := range cur {
		if _, ok := oldSet[id]; ok {
			continue
		}
		oldSet[id] = struct{}{} // dedupe
		added = append(added, id)
	}

	removed = []string{}
	for _, id := range old {
		if _, ok := curSet[id]; ok {
			continue
		}
		curSet[id] = struct{}{}
		removed = append(removed, id)
	}

	return added, removed
}

// ValidateID checks that id can be used as a single coordination-store key token.
//
// Allowed characters are ASCII letters, digits, '-', '_' and '='. Dots are the
// hierarchy separator and are therefore rejected, as are wildcards.
//
// Returns:
//   - error: ErrInvalidID wrapped with the offending value, nil if valid
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidID, id, r)
		}
	}

	return nil
}
