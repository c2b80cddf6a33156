package health

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/fleetsvc"
)

// fakeStore is a minimal in-memory fleet.Store double scoped to what
// health exercises.
type fakeStore struct {
	pingErr error
	hosts   []fleet.Host
	tasks   map[string]fleet.Task
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]fleet.Task{}}
}

func (s *fakeStore) CreateHost(context.Context, fleet.Host) (fleet.Host, error)  { return fleet.Host{}, nil }
func (s *fakeStore) GetHost(context.Context, string) (fleet.Host, error)         { return fleet.Host{}, nil }
func (s *fakeStore) GetHostByNumber(context.Context, string) (fleet.Host, error) { return fleet.Host{}, nil }
func (s *fakeStore) ListHosts(context.Context, fleet.HostFilter) ([]fleet.Host, error) {
	return s.hosts, nil
}
func (s *fakeStore) UpdateHost(context.Context, string, map[string]any) (fleet.Host, error) {
	return fleet.Host{}, nil
}
func (s *fakeStore) DeleteHost(context.Context, string) error { return nil }
func (s *fakeStore) Heartbeat(context.Context, string) error  { return nil }
func (s *fakeStore) HostSummaries(context.Context) ([]fleet.HostSummary, error) {
	return []fleet.HostSummary{{HostID: "h1", Number: "HOST01", DeviceCount: 2, OnlineCount: 1}}, nil
}

func (s *fakeStore) CreateDevice(context.Context, fleet.Device) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) GetDevice(context.Context, string) (fleet.Device, error) { return fleet.Device{}, nil }
func (s *fakeStore) GetDeviceByCode(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) GetDeviceBySerial(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) GetDeviceByIP(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) ListDevices(context.Context, fleet.DeviceFilter) ([]fleet.Device, error) {
	return nil, nil
}
func (s *fakeStore) UpdateDevice(context.Context, string, map[string]any) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) DeleteDevice(context.Context, string) error { return nil }
func (s *fakeStore) AssignDevice(context.Context, string, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) UnassignDevice(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, nil
}
func (s *fakeStore) OnlineDevices(context.Context) ([]fleet.Device, error) { return nil, nil }

func (s *fakeStore) CreateTask(_ context.Context, t fleet.Task) (fleet.Task, error) {
	s.nextID++
	t.ID = "task-" + string(rune('0'+s.nextID))
	s.tasks[t.ID] = t
	return t, nil
}
func (s *fakeStore) GetTask(_ context.Context, id string) (fleet.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return fleet.Task{}, fleet.ErrNotFound
	}
	return t, nil
}
func (s *fakeStore) GetTaskByBrokerID(context.Context, string) (fleet.Task, error) {
	return fleet.Task{}, fleet.ErrNotFound
}
func (s *fakeStore) ListTasks(context.Context, fleet.TaskFilter) ([]fleet.Task, error) { return nil, nil }
func (s *fakeStore) UpdateTaskStatus(context.Context, string, fleet.TaskStatus, map[string]any) (fleet.Task, error) {
	return fleet.Task{}, nil
}
func (s *fakeStore) IncrementTaskRetry(context.Context, string) (int, error) { return 0, nil }
func (s *fakeStore) RecentTasks(context.Context, int) ([]fleet.Task, error)  { return nil, nil }
func (s *fakeStore) TaskStatistics(context.Context) (fleet.TaskStats, error) {
	return fleet.TaskStats{Total: 5, Pending: 1}, nil
}
func (s *fakeStore) Ping(context.Context) error { return s.pingErr }
func (s *fakeStore) Close()                     {}

func newTestService(store *fakeStore) *Service {
	b := broker.NewMemory()
	fleetSvc := fleetsvc.New(store)
	plane := dispatch.New(b, store)
	return New(store, b, fleetSvc, plane, "http://localhost:4723", "farmctl", "test", prometheus.NewRegistry())
}

func TestReadinessSucceedsOnStorePing(t *testing.T) {
	s := newTestService(newFakeStore())
	ok, reason := s.Readiness(context.Background())
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestReadinessFailsOnStorePingError(t *testing.T) {
	store := newFakeStore()
	store.pingErr = fleet.ErrNotFound
	s := newTestService(store)
	ok, reason := s.Readiness(context.Background())
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestLivenessAlwaysTrue(t *testing.T) {
	s := newTestService(newFakeStore())
	require.True(t, s.Liveness())
}

func TestStatusReportsHealthyWhenAllSubsystemsOK(t *testing.T) {
	store := newFakeStore()
	store.hosts = []fleet.Host{{ID: "h1", Number: "HOST01", Status: fleet.HostOnline}}
	s := newTestService(store)

	status := s.Status(context.Background())
	require.Equal(t, "healthy", status.Overall)
	require.Equal(t, "healthy", status.Database)
	require.Equal(t, "healthy", status.Broker)
	require.Len(t, status.Workers, 1)
	require.Equal(t, []string{"host01", "default"}, status.Workers[0].Queues)
	require.Equal(t, 5, status.Tasks.Total)
}

func TestStatusDegradesOnDatabaseFailure(t *testing.T) {
	store := newFakeStore()
	store.pingErr = fleet.ErrNotFound
	s := newTestService(store)

	status := s.Status(context.Background())
	require.Equal(t, "degraded", status.Overall)
}
