package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// memStore is a minimal in-memory fleet.Store double scoped to what
// dispatch exercises.
type memStore struct {
	tasks  map[string]fleet.Task
	nextID int
}

func newMemStore() *memStore { return &memStore{tasks: map[string]fleet.Task{}} }

func (s *memStore) CreateHost(context.Context, fleet.Host) (fleet.Host, error)   { return fleet.Host{}, nil }
func (s *memStore) GetHost(context.Context, string) (fleet.Host, error)          { return fleet.Host{}, nil }
func (s *memStore) GetHostByNumber(context.Context, string) (fleet.Host, error)  { return fleet.Host{}, nil }
func (s *memStore) ListHosts(context.Context, fleet.HostFilter) ([]fleet.Host, error) { return nil, nil }
func (s *memStore) UpdateHost(context.Context, string, map[string]any) (fleet.Host, error) {
	return fleet.Host{}, nil
}
func (s *memStore) DeleteHost(context.Context, string) error { return nil }
func (s *memStore) Heartbeat(context.Context, string) error  { return nil }
func (s *memStore) HostSummaries(context.Context) ([]fleet.HostSummary, error) { return nil, nil }

func (s *memStore) CreateDevice(context.Context, fleet.Device) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) GetDevice(context.Context, string) (fleet.Device, error) { return fleet.Device{}, nil }
func (s *memStore) GetDeviceByCode(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) GetDeviceBySerial(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) GetDeviceByIP(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) ListDevices(context.Context, fleet.DeviceFilter) ([]fleet.Device, error) {
	return nil, nil
}
func (s *memStore) UpdateDevice(context.Context, string, map[string]any) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) DeleteDevice(context.Context, string) error { return nil }
func (s *memStore) AssignDevice(context.Context, string, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) UnassignDevice(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *memStore) OnlineDevices(context.Context) ([]fleet.Device, error) { return nil, nil }

func (s *memStore) CreateTask(_ context.Context, t fleet.Task) (fleet.Task, error) {
	s.nextID++
	t.ID = "task-" + string(rune('0'+s.nextID))
	s.tasks[t.ID] = t
	return t, nil
}
func (s *memStore) GetTask(_ context.Context, id string) (fleet.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return fleet.Task{}, fleet.ErrNotFound
	}
	return t, nil
}
func (s *memStore) GetTaskByBrokerID(context.Context, string) (fleet.Task, error) {
	return fleet.Task{}, fleet.ErrNotFound
}
func (s *memStore) ListTasks(context.Context, fleet.TaskFilter) ([]fleet.Task, error) { return nil, nil }
func (s *memStore) UpdateTaskStatus(_ context.Context, id string, status fleet.TaskStatus, patch map[string]any) (fleet.Task, error) {
	t := s.tasks[id]
	t.Status = status
	if v, ok := patch["completed_at"]; ok {
		_ = v
	}
	s.tasks[id] = t
	return t, nil
}
func (s *memStore) IncrementTaskRetry(context.Context, string) (int, error) { return 0, nil }
func (s *memStore) RecentTasks(context.Context, int) ([]fleet.Task, error) { return nil, nil }
func (s *memStore) TaskStatistics(context.Context) (fleet.TaskStats, error) {
	return fleet.TaskStats{}, nil
}
func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close()                     {}

func TestSendRecordsPendingTask(t *testing.T) {
	b := broker.NewMemory()
	store := newMemStore()
	p := New(b, store)

	d, err := p.Send(context.Background(), taskproto.KindScanDevices, "host01", nil, nil, taskproto.ScanDevicesParams{HostID: "HOST01"})
	require.NoError(t, err)
	require.NotEmpty(t, d.TaskID)
	require.NotEmpty(t, d.BrokerID)

	task, err := store.GetTask(context.Background(), d.TaskID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskPending, task.Status)
	require.Equal(t, string(taskproto.KindScanDevices), task.Kind)
}

func TestCancelMarksCancelled(t *testing.T) {
	b := broker.NewMemory()
	store := newMemStore()
	p := New(b, store)

	d, err := p.Send(context.Background(), taskproto.KindRebootDevice, "host01", nil, nil, taskproto.RebootDeviceParams{DeviceID: "dev1"})
	require.NoError(t, err)

	task, err := p.Cancel(context.Background(), d.TaskID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskCancelled, task.Status)
}

func TestGetBrokerStatusMergesDBRow(t *testing.T) {
	b := broker.NewMemory()
	store := newMemStore()
	p := New(b, store)

	d, err := p.Send(context.Background(), taskproto.KindHealthCheck, "host01", nil, nil, taskproto.HealthCheckParams{DeviceID: "dev1"})
	require.NoError(t, err)

	status, err := p.GetBrokerStatus(context.Background(), d.TaskID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskPending, status.DBStatus)
	require.Equal(t, status.DBStatus, status.BrokerStatus)
}
