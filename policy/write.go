package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/fabric/types"
)

// writeAll writes every member's list, including empty ones.
//
// A failed write is logged with task and member ids and does not stop the
// remaining writes. Successful writes are not rolled back.
func writeAll(
	ctx context.Context,
	writer types.AssignmentWriter,
	logger types.Logger,
	taskID string,
	memberIDs []string,
	assignment map[string][]string,
) error {
	var errs []error
	for _, member := range memberIDs {
		ids := assignment[member]
		if ids == nil {
			ids = []string{}
		}

		if err := writer.WriteAssignment(ctx, taskID, member, ids); err != nil {
			logger.Error("failed to write assignment", "task", taskID, "member", member, "partitions", len(ids), "error", err)
			if !errors.Is(err, types.ErrAssignmentWrite) {
				err = fmt.Errorf("%w: %s: %w", types.ErrAssignmentWrite, member, err)
			}
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
