package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/fleetsvc"
	"github.com/doai-fleet/farmctl/internal/health"
)

// testStore is a minimal in-memory fleet.Store double scoped to what
// the api package's handlers exercise.
type testStore struct {
	hosts   map[string]fleet.Host
	devices map[string]fleet.Device
	tasks   map[string]fleet.Task
	seq     int
}

func newTestStore() *testStore {
	return &testStore{hosts: map[string]fleet.Host{}, devices: map[string]fleet.Device{}, tasks: map[string]fleet.Task{}}
}

func (s *testStore) genID(prefix string) string {
	s.seq++
	return prefix + "-" + string(rune('0'+s.seq))
}

func (s *testStore) CreateHost(_ context.Context, h fleet.Host) (fleet.Host, error) {
	h.ID = s.genID("host")
	s.hosts[h.ID] = h
	return h, nil
}
func (s *testStore) GetHost(_ context.Context, id string) (fleet.Host, error) {
	h, ok := s.hosts[id]
	if !ok {
		return fleet.Host{}, fleet.ErrNotFound
	}
	return h, nil
}
func (s *testStore) GetHostByNumber(_ context.Context, number string) (fleet.Host, error) {
	for _, h := range s.hosts {
		if h.Number == number {
			return h, nil
		}
	}
	return fleet.Host{}, fleet.ErrNotFound
}
func (s *testStore) ListHosts(context.Context, fleet.HostFilter) ([]fleet.Host, error) {
	out := make([]fleet.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out, nil
}
func (s *testStore) UpdateHost(_ context.Context, id string, patch map[string]any) (fleet.Host, error) {
	h := s.hosts[id]
	if status, ok := patch["status"].(string); ok {
		h.Status = fleet.HostStatus(status)
	}
	s.hosts[id] = h
	return h, nil
}
func (s *testStore) DeleteHost(_ context.Context, id string) error {
	delete(s.hosts, id)
	return nil
}
func (s *testStore) Heartbeat(context.Context, string) error { return nil }
func (s *testStore) HostSummaries(context.Context) ([]fleet.HostSummary, error) {
	return []fleet.HostSummary{{HostID: "host-1", Number: "HOST01", DeviceCount: 1}}, nil
}

func (s *testStore) CreateDevice(_ context.Context, d fleet.Device) (fleet.Device, error) {
	d.ID = s.genID("dev")
	s.devices[d.ID] = d
	return d, nil
}
func (s *testStore) GetDevice(_ context.Context, id string) (fleet.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return fleet.Device{}, fleet.ErrNotFound
	}
	return d, nil
}
func (s *testStore) GetDeviceByCode(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, fleet.ErrNotFound
}
func (s *testStore) GetDeviceBySerial(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, fleet.ErrNotFound
}
func (s *testStore) GetDeviceByIP(context.Context, string) (fleet.Device, error) {
	return fleet.Device{}, fleet.ErrNotFound
}
func (s *testStore) ListDevices(context.Context, fleet.DeviceFilter) ([]fleet.Device, error) {
	out := make([]fleet.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out, nil
}
func (s *testStore) UpdateDevice(_ context.Context, id string, patch map[string]any) (fleet.Device, error) {
	d := s.devices[id]
	s.devices[id] = d
	return d, nil
}
func (s *testStore) DeleteDevice(_ context.Context, id string) error {
	delete(s.devices, id)
	return nil
}
func (s *testStore) AssignDevice(_ context.Context, deviceID, hostID string) (fleet.Device, error) {
	d := s.devices[deviceID]
	d.HostID = &hostID
	s.devices[deviceID] = d
	return d, nil
}
func (s *testStore) UnassignDevice(_ context.Context, deviceID string) (fleet.Device, error) {
	d := s.devices[deviceID]
	d.HostID = nil
	s.devices[deviceID] = d
	return d, nil
}
func (s *testStore) OnlineDevices(context.Context) ([]fleet.Device, error) { return nil, nil }

func (s *testStore) CreateTask(_ context.Context, t fleet.Task) (fleet.Task, error) {
	t.ID = s.genID("task")
	s.tasks[t.ID] = t
	return t, nil
}
func (s *testStore) GetTask(_ context.Context, id string) (fleet.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return fleet.Task{}, fleet.ErrNotFound
	}
	return t, nil
}
func (s *testStore) GetTaskByBrokerID(context.Context, string) (fleet.Task, error) {
	return fleet.Task{}, fleet.ErrNotFound
}
func (s *testStore) ListTasks(context.Context, fleet.TaskFilter) ([]fleet.Task, error) { return nil, nil }
func (s *testStore) UpdateTaskStatus(_ context.Context, id string, status fleet.TaskStatus, _ map[string]any) (fleet.Task, error) {
	t := s.tasks[id]
	t.Status = status
	s.tasks[id] = t
	return t, nil
}
func (s *testStore) IncrementTaskRetry(context.Context, string) (int, error) { return 0, nil }
func (s *testStore) RecentTasks(context.Context, int) ([]fleet.Task, error)  { return nil, nil }
func (s *testStore) TaskStatistics(context.Context) (fleet.TaskStats, error) {
	return fleet.TaskStats{Total: len(s.tasks)}, nil
}
func (s *testStore) Ping(context.Context) error { return nil }
func (s *testStore) Close()                     {}

func newTestServer() (*Server, *testStore) {
	store := newTestStore()
	b := broker.NewMemory()
	fleetSvc := fleetsvc.New(store)
	plane := dispatch.New(b, store)
	h := health.New(store, b, fleetSvc, plane, "http://localhost:4723", "farmctl", "test", prometheus.NewRegistry())
	return New(fleetSvc, plane, h, zerolog.Nop()), store
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetHost(t *testing.T) {
	s, _ := newTestServer()
	router := s.Router([]string{"*"}, 1000)

	rec := doRequest(t, router, http.MethodPost, "/api/hosts", fleet.Host{Number: "HOST01", Address: "10.0.0.1", MaxDevices: 8})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created fleet.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec2 := doRequest(t, router, http.MethodGet, "/api/hosts/HOST01", nil)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestCreateDeviceRejectsMissingTransport(t *testing.T) {
	s, _ := newTestServer()
	router := s.Router([]string{"*"}, 1000)

	rec := doRequest(t, router, http.MethodPost, "/api/devices", fleet.Device{PhysicalPort: 1, Connection: fleet.ConnUSB, BatteryLevel: 50})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchScanDevicesReturnsTaskAndBrokerID(t *testing.T) {
	s, store := newTestServer()
	router := s.Router([]string{"*"}, 1000)
	store.hosts["host-1"] = fleet.Host{ID: "host-1", Number: "HOST01", Address: "10.0.0.1"}

	rec := doRequest(t, router, http.MethodPost, "/api/tasks/scan-devices", map[string]string{"host_id": "host-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var d dispatch.Dispatched
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.NotEmpty(t, d.TaskID)
	require.NotEmpty(t, d.BrokerID)
}

func TestCancelUnknownTaskReturns404(t *testing.T) {
	s, _ := newTestServer()
	router := s.Router([]string{"*"}, 1000)

	rec := doRequest(t, router, http.MethodPost, "/api/tasks/missing/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer()
	router := s.Router([]string{"*"}, 1000)

	rec := doRequest(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/health/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
