package worker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

func newTestWorker() (*Worker, *fakeStore) {
	store := newFakeStore()
	pool := automation.NewSessionPool("http://localhost:4723", 8200, 8210, 5, zerolog.Nop())
	return New(pool, store, nil, broker.NewMemory(), "/tmp/farmctl-test-evidence", 5, zerolog.Nop()), store
}

func TestBatchProgressPct(t *testing.T) {
	require.Equal(t, 50, batchProgressPct(1, 2))
	require.Equal(t, 100, batchProgressPct(2, 2))
	require.Equal(t, 100, batchProgressPct(1, 0))
}

func TestMax1(t *testing.T) {
	require.Equal(t, 1, max1(0))
	require.Equal(t, 1, max1(-5))
	require.Equal(t, 3, max1(3))
}

func TestIsAutomationException(t *testing.T) {
	require.True(t, isAutomationException("E4002"))
	require.True(t, isAutomationException("E4003"))
	require.False(t, isAutomationException("E2001"))
	require.False(t, isAutomationException(""))
}

func TestStopAppiumSessionMarksDeviceOnline(t *testing.T) {
	w, store := newTestWorker()
	dev, _ := store.CreateDevice(context.Background(), fleet.Device{Serial: "emulator-5554", Status: fleet.DeviceBusy})
	task, _ := store.CreateTask(context.Background(), fleet.Task{BrokerID: "b1", Status: fleet.TaskPending})

	w.StopAppiumSession(context.Background(), task.ID, taskproto.StopBotParams{DeviceID: dev.ID})

	updated, err := store.GetDevice(context.Background(), dev.ID)
	require.NoError(t, err)
	require.Equal(t, fleet.DeviceOnline, updated.Status)

	finishedTask, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskSuccess, finishedTask.Status)
}

func TestStopAppiumSessionUnknownDeviceFails(t *testing.T) {
	w, store := newTestWorker()
	task, _ := store.CreateTask(context.Background(), fleet.Task{BrokerID: "b2", Status: fleet.TaskPending})

	w.StopAppiumSession(context.Background(), task.ID, taskproto.StopBotParams{DeviceID: "missing"})

	finishedTask, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskFailed, finishedTask.Status)
}

func TestAppiumHealthCheckReportsPoolMetrics(t *testing.T) {
	w, store := newTestWorker()
	task, _ := store.CreateTask(context.Background(), fleet.Task{BrokerID: "b3", Status: fleet.TaskPending})

	w.AppiumHealthCheck(context.Background(), task.ID, taskproto.AppiumHealthCheckParams{})

	finishedTask, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskSuccess, finishedTask.Status)
}

func TestScanDevicesUnknownHostFails(t *testing.T) {
	w, store := newTestWorker()
	task, _ := store.CreateTask(context.Background(), fleet.Task{BrokerID: "b4", Status: fleet.TaskPending})

	w.ScanDevices(context.Background(), task.ID, taskproto.ScanDevicesParams{HostID: "HOST99"})

	finishedTask, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, fleet.TaskFailed, finishedTask.Status)
}

func TestGenIDMonotone(t *testing.T) {
	s := newFakeStore()
	a := s.genID("x")
	b := s.genID("x")
	require.NotEqual(t, a, b)
}
