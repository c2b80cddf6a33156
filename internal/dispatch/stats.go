package dispatch

import (
	"context"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// Stats implements get_stats(): an aggregate view over the task table.
func (p *Plane) Stats(ctx context.Context) (fleet.TaskStats, error) {
	return p.Store.TaskStatistics(ctx)
}

// Recent implements get_recent(limit): the most recently created tasks.
func (p *Plane) Recent(ctx context.Context, limit int) ([]fleet.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	return p.Store.RecentTasks(ctx, limit)
}

// List implements list_tasks's filtered pagination.
func (p *Plane) List(ctx context.Context, f fleet.TaskFilter) ([]fleet.Task, error) {
	return p.Store.ListTasks(ctx, f)
}

// Get fetches a single task by id.
func (p *Plane) Get(ctx context.Context, taskID string) (fleet.Task, error) {
	return p.Store.GetTask(ctx, taskID)
}
