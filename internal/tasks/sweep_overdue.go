package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// OverdueExpirer closes borrows that are past due.
type OverdueExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// SweepOverdueBorrowsTask closes every overdue borrow. Overdue borrows are
// already closed lazily whenever they are read, so the sweep only keeps
// rows nobody looks at from lingering.
type SweepOverdueBorrowsTask struct{}

func (t SweepOverdueBorrowsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sweep_overdue_borrows",
		MaxAttempts: 2,
		Backoff:     time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func SweepOverdueBorrowsProcessor(expirer OverdueExpirer) backlite.QueueProcessor[SweepOverdueBorrowsTask] {
	return func(ctx context.Context, _ SweepOverdueBorrowsTask) error {
		if expirer == nil {
			return fmt.Errorf("overdue expirer not configured")
		}
		closed, err := expirer.ExpireOverdue(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("sweep overdue borrows: %w", err)
		}
		log.Printf("[TASK] Closed %d overdue borrows", closed)
		return nil
	}
}

func NewSweepOverdueBorrowsQueue(expirer OverdueExpirer) backlite.Queue {
	return backlite.NewQueue(SweepOverdueBorrowsProcessor(expirer))
}
