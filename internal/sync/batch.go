package sync

import (
	"context"
	"fmt"

	"github.com/bcgov/ago-group-sync/tools"
)

// MaxBatchSize is the most usernames the portal accepts per addUsers call.
const MaxBatchSize = 25

// BatchAddError reports the add-members call that stopped a sync. Batches
// before Index were applied and stay applied.
type BatchAddError struct {
	Index     int
	Usernames []string
	Err       error
}

func (e *BatchAddError) Error() string {
	return fmt.Sprintf("batch %d (%d users) failed: %v", e.Index+1, len(e.Usernames), e.Err)
}

func (e *BatchAddError) Unwrap() error {
	return e.Err
}

// MemberAdder adds usernames to a group in one call and returns the
// usernames it declined.
type MemberAdder interface {
	AddUsers(ctx context.Context, groupID string, usernames []string) ([]string, error)
}

// AddUsersInBatches issues one AddUsers call per batch of at most batchSize
// usernames, in order. It stops at the first failing call. It returns the
// number of batches applied and the usernames the portal declined.
// A batchSize outside 1..MaxBatchSize is treated as MaxBatchSize.
func AddUsersInBatches(ctx context.Context, adder MemberAdder, groupID string, usernames []string, batchSize int) (int, []string, error) {
	batches := tools.Chunk(usernames, effectiveBatchSize(batchSize))

	var notAdded []string
	for i, batch := range batches {
		tools.Log.WithFields(map[string]interface{}{
			"group": groupID,
			"batch": fmt.Sprintf("%d/%d", i+1, len(batches)),
			"size":  len(batch),
		}).Info("Adding batch of users")

		declined, err := adder.AddUsers(ctx, groupID, batch)
		if err != nil {
			return i, notAdded, &BatchAddError{Index: i, Usernames: batch, Err: err}
		}
		for _, name := range declined {
			tools.Log.WithFields(map[string]interface{}{
				"group": groupID,
				"user":  name,
			}).Warn("Portal did not add user")
		}
		notAdded = append(notAdded, declined...)
	}
	return len(batches), notAdded, nil
}

func effectiveBatchSize(size int) int {
	if size <= 0 || size > MaxBatchSize {
		return MaxBatchSize
	}
	return size
}
