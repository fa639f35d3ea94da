package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// WriteTask is one deferred persistence call. Tasks sharing a key run in the
// order they were submitted. Run must only touch data captured at submit time.
type WriteTask struct {
	Op   string
	Keys []string
	Run  func(ctx context.Context) error
}

// Scheduler executes WriteTasks off the control goroutine.
type Scheduler interface {
	// Submit queues a task. It fails only once the scheduler is shut down.
	Submit(task WriteTask) error

	// Flush blocks until every task submitted so far has finished.
	Flush(ctx context.Context) error

	// Shutdown stops intake and drains queued work within the grace period.
	Shutdown() error
}

// ClaimKey is the record key for a claim family: a top-level claim together
// with its subdivisions.
func ClaimKey(topLevelID int64) string { return fmt.Sprintf("claim:%d", topLevelID) }

func PlayerKey(id uuid.UUID) string { return "player:" + id.String() }

func OwnerKey(id uuid.UUID) string { return "owner:" + id.String() }

// ImmediateScheduler runs each task synchronously inside Submit. Useful for
// one-shot tools and tests where there is nothing to overlap with.
type ImmediateScheduler struct {
	Logger Logger
}

func (s *ImmediateScheduler) Submit(task WriteTask) error {
	if err := task.Run(context.Background()); err != nil && s.Logger != nil {
		s.Logger.Error("persistence task failed", "op", task.Op, "keys", task.Keys, "error", err)
	}
	return nil
}

func (s *ImmediateScheduler) Flush(context.Context) error { return nil }

func (s *ImmediateScheduler) Shutdown() error { return nil }
