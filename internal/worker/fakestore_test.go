package worker

import (
	"context"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// fakeStore is a minimal in-memory fleet.Store double for worker unit
// tests — no pack example ships an in-memory Store fake, and
// go-sqlmock only makes sense against the real PostgresStore.
type fakeStore struct {
	hosts       map[string]fleet.Host
	hostsByNum  map[string]string
	devices     map[string]fleet.Device
	bySerial    map[string]string
	tasks       map[string]fleet.Task
	byBrokerID  map[string]string
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hosts:      map[string]fleet.Host{},
		hostsByNum: map[string]string{},
		devices:    map[string]fleet.Device{},
		bySerial:   map[string]string{},
		tasks:      map[string]fleet.Task{},
		byBrokerID: map[string]string{},
	}
}

func (s *fakeStore) genID(prefix string) string {
	s.nextID++
	return prefix + "-" + itoa(s.nextID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *fakeStore) CreateHost(_ context.Context, h fleet.Host) (fleet.Host, error) {
	h.ID = s.genID("host")
	s.hosts[h.ID] = h
	s.hostsByNum[h.Number] = h.ID
	return h, nil
}
func (s *fakeStore) GetHost(_ context.Context, id string) (fleet.Host, error) {
	h, ok := s.hosts[id]
	if !ok {
		return fleet.Host{}, fleet.ErrNotFound
	}
	return h, nil
}
func (s *fakeStore) GetHostByNumber(_ context.Context, number string) (fleet.Host, error) {
	id, ok := s.hostsByNum[number]
	if !ok {
		return fleet.Host{}, fleet.ErrNotFound
	}
	return s.hosts[id], nil
}
func (s *fakeStore) ListHosts(_ context.Context, _ fleet.HostFilter) ([]fleet.Host, error) {
	out := make([]fleet.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out, nil
}
func (s *fakeStore) UpdateHost(_ context.Context, id string, patch map[string]any) (fleet.Host, error) {
	h, ok := s.hosts[id]
	if !ok {
		return fleet.Host{}, fleet.ErrNotFound
	}
	applyHostPatch(&h, patch)
	s.hosts[id] = h
	return h, nil
}
func (s *fakeStore) DeleteHost(_ context.Context, id string) error {
	delete(s.hosts, id)
	return nil
}
func (s *fakeStore) Heartbeat(_ context.Context, number string) error {
	id, ok := s.hostsByNum[number]
	if !ok {
		return fleet.ErrNotFound
	}
	h := s.hosts[id]
	h.Status = fleet.HostOnline
	s.hosts[id] = h
	return nil
}
func (s *fakeStore) HostSummaries(_ context.Context) ([]fleet.HostSummary, error) { return nil, nil }

func (s *fakeStore) CreateDevice(_ context.Context, d fleet.Device) (fleet.Device, error) {
	d.ID = s.genID("dev")
	s.devices[d.ID] = d
	if d.Serial != "" {
		s.bySerial[d.Serial] = d.ID
	}
	return d, nil
}
func (s *fakeStore) GetDevice(_ context.Context, id string) (fleet.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return fleet.Device{}, fleet.ErrNotFound
	}
	return d, nil
}
func (s *fakeStore) GetDeviceByCode(_ context.Context, _ string) (fleet.Device, error) {
	return fleet.Device{}, fleet.ErrNotFound
}
func (s *fakeStore) GetDeviceBySerial(_ context.Context, serial string) (fleet.Device, error) {
	id, ok := s.bySerial[serial]
	if !ok {
		return fleet.Device{}, fleet.ErrNotFound
	}
	return s.devices[id], nil
}
func (s *fakeStore) GetDeviceByIP(_ context.Context, _ string) (fleet.Device, error) {
	return fleet.Device{}, fleet.ErrNotFound
}
func (s *fakeStore) ListDevices(_ context.Context, _ fleet.DeviceFilter) ([]fleet.Device, error) {
	out := make([]fleet.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out, nil
}
func (s *fakeStore) UpdateDevice(_ context.Context, id string, patch map[string]any) (fleet.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return fleet.Device{}, fleet.ErrNotFound
	}
	applyDevicePatch(&d, patch)
	s.devices[id] = d
	return d, nil
}
func (s *fakeStore) DeleteDevice(_ context.Context, id string) error {
	delete(s.devices, id)
	return nil
}
func (s *fakeStore) AssignDevice(_ context.Context, deviceID, hostID string) (fleet.Device, error) {
	d := s.devices[deviceID]
	d.HostID = &hostID
	s.devices[deviceID] = d
	return d, nil
}
func (s *fakeStore) UnassignDevice(_ context.Context, deviceID string) (fleet.Device, error) {
	d := s.devices[deviceID]
	d.HostID = nil
	s.devices[deviceID] = d
	return d, nil
}
func (s *fakeStore) OnlineDevices(_ context.Context) ([]fleet.Device, error) { return nil, nil }

func (s *fakeStore) CreateTask(_ context.Context, t fleet.Task) (fleet.Task, error) {
	t.ID = s.genID("task")
	s.tasks[t.ID] = t
	if t.BrokerID != "" {
		s.byBrokerID[t.BrokerID] = t.ID
	}
	return t, nil
}
func (s *fakeStore) GetTask(_ context.Context, id string) (fleet.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return fleet.Task{}, fleet.ErrNotFound
	}
	return t, nil
}
func (s *fakeStore) GetTaskByBrokerID(_ context.Context, brokerID string) (fleet.Task, error) {
	id, ok := s.byBrokerID[brokerID]
	if !ok {
		return fleet.Task{}, fleet.ErrNotFound
	}
	return s.tasks[id], nil
}
func (s *fakeStore) ListTasks(_ context.Context, _ fleet.TaskFilter) ([]fleet.Task, error) {
	out := make([]fleet.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (s *fakeStore) UpdateTaskStatus(_ context.Context, id string, status fleet.TaskStatus, patch map[string]any) (fleet.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		t = fleet.Task{ID: id}
	}
	t.Status = status
	applyTaskPatch(&t, patch)
	s.tasks[id] = t
	return t, nil
}
func (s *fakeStore) IncrementTaskRetry(_ context.Context, id string) (int, error) {
	t := s.tasks[id]
	t.Retries++
	s.tasks[id] = t
	return t.Retries, nil
}
func (s *fakeStore) RecentTasks(_ context.Context, _ int) ([]fleet.Task, error) { return nil, nil }
func (s *fakeStore) TaskStatistics(_ context.Context) (fleet.TaskStats, error) {
	return fleet.TaskStats{}, nil
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }
func (s *fakeStore) Close()                       {}

func applyHostPatch(h *fleet.Host, patch map[string]any) {
	if v, ok := patch["status"].(fleet.HostStatus); ok {
		h.Status = v
	}
}

func applyDevicePatch(d *fleet.Device, patch map[string]any) {
	if v, ok := patch["status"].(fleet.DeviceStatus); ok {
		d.Status = v
	}
	if v, ok := patch["battery_level"].(int); ok {
		d.BatteryLevel = v
	}
	if v, ok := patch["model"].(string); ok {
		d.Model = v
	}
	if v, ok := patch["os_version"].(string); ok {
		d.OSVersion = v
	}
}

func applyTaskPatch(t *fleet.Task, patch map[string]any) {
	if v, ok := patch["progress"].(int); ok {
		t.Progress = v
	}
	if v, ok := patch["progress_message"].(string); ok {
		t.ProgressMessage = v
	}
	if v, ok := patch["error"].(string); ok {
		t.Error = v
	}
	if v, ok := patch["result"].([]byte); ok {
		t.Result = v
	}
}
