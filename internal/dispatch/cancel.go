package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// Cancel implements cancel_task(id): look up the row, issue a broker
// revoke with terminate, set status=cancelled, completed_at=now
// (spec.md §4.I).
func (p *Plane) Cancel(ctx context.Context, taskID string) (fleet.Task, error) {
	task, err := p.Store.GetTask(ctx, taskID)
	if err != nil {
		return fleet.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}

	if !task.Status.Terminal() {
		if err := p.Broker.Revoke(ctx, task.BrokerID); err != nil {
			// best-effort: a task that already finished or whose
			// worker vanished still transitions to cancelled below.
			_ = err
		}
	}

	now := time.Now()
	return p.Store.UpdateTaskStatus(ctx, taskID, fleet.TaskCancelled, map[string]any{"completed_at": now})
}
