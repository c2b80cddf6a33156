package dispatch

import (
	"context"
	"fmt"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// BrokerStatus is the merged view get_celery_status(broker_id)
// returns in the Python source, where Celery's Redis result backend
// supplied a separate live status alongside the DB row. This module
// carries no Redis/Celery result backend (DESIGN.md: deliberately not
// wired — Postgres is the single source of truth once the worker
// writes back synchronously), so the "merge" collapses to the task
// row itself; BrokerStatus exists to keep the two-field shape spec.md
// names (db_status, broker_status) rather than silently dropping it.
type BrokerStatus struct {
	TaskID       string          `json:"task_id"`
	BrokerID     string          `json:"broker_id"`
	DBStatus     fleet.TaskStatus `json:"db_status"`
	BrokerStatus fleet.TaskStatus `json:"broker_status"`
}

// GetBrokerStatus implements get_celery_status(broker_id): probe the
// broker (a no-op beyond the DB row here, since no external result
// backend exists) and merge against the DB row.
func (p *Plane) GetBrokerStatus(ctx context.Context, taskID string) (BrokerStatus, error) {
	task, err := p.Store.GetTask(ctx, taskID)
	if err != nil {
		return BrokerStatus{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return BrokerStatus{
		TaskID:       task.ID,
		BrokerID:     task.BrokerID,
		DBStatus:     task.Status,
		BrokerStatus: task.Status,
	}, nil
}
