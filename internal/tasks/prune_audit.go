package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

const defaultAuditRetentionDays = 90

// AuditPruner deletes audit events older than a retention window.
type AuditPruner interface {
	DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error)
}

type PruneAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t PruneAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "prune_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// PruneAuditEventsProcessor uses a 90 day window when the task carries none.
func PruneAuditEventsProcessor(pruner AuditPruner) backlite.QueueProcessor[PruneAuditEventsTask] {
	return func(ctx context.Context, task PruneAuditEventsTask) error {
		if pruner == nil {
			return fmt.Errorf("audit pruner not configured")
		}
		days := task.RetentionDays
		if days <= 0 {
			days = defaultAuditRetentionDays
		}
		deleted, err := pruner.DeleteOldEvents(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return fmt.Errorf("prune audit events: %w", err)
		}
		log.Printf("[TASK] Pruned %d audit events older than %d days", deleted, days)
		return nil
	}
}

func NewPruneAuditEventsQueue(pruner AuditPruner) backlite.Queue {
	return backlite.NewQueue(PruneAuditEventsProcessor(pruner))
}
