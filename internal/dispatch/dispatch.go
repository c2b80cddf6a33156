// Package dispatch implements component I: the API-side dispatch
// plane. Every request that triggers work builds a task envelope,
// resolves the host-number queue, publishes it, records a task row,
// and returns immediately — grounded on task_service.py's
// dispatch_* methods.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// Plane bundles the broker and fleet store the dispatch plane needs.
type Plane struct {
	Broker broker.Broker
	Store  fleet.Store
}

// New builds a dispatch Plane.
func New(b broker.Broker, store fleet.Store) *Plane {
	return &Plane{Broker: b, Store: store}
}

// Dispatched is returned to callers: {task_id, broker_id} (spec.md
// §4.I step 5 — the response never waits for completion).
type Dispatched struct {
	TaskID   string `json:"task_id"`
	BrokerID string `json:"broker_id"`
}

// Send publishes payload under kind on queue, then inserts a pending
// task row carrying the broker id, device/host association, and the
// raw payload — spec.md §4.I steps 1-4.
func (p *Plane) Send(ctx context.Context, kind taskproto.Kind, queue string, deviceID, hostID *string, payload any) (Dispatched, error) {
	body, err := taskproto.Wrap(kind, payload)
	if err != nil {
		return Dispatched{}, fmt.Errorf("wrap %s: %w", kind, err)
	}

	brokerID, err := p.Broker.Publish(ctx, string(kind), body)
	if err != nil {
		return Dispatched{}, fmt.Errorf("publish %s: %w", kind, err)
	}

	task, err := p.Store.CreateTask(ctx, fleet.Task{
		BrokerID:  brokerID,
		Kind:      string(kind),
		Queue:     queue,
		DeviceID:  deviceID,
		HostID:    hostID,
		Payload:   body,
		Status:    fleet.TaskPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return Dispatched{}, fmt.Errorf("record task %s: %w", kind, err)
	}

	return Dispatched{TaskID: task.ID, BrokerID: task.BrokerID}, nil
}

// ScanDevices dispatches a device scan onto host's queue.
func (p *Plane) ScanDevices(ctx context.Context, host fleet.Host) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindScanDevices, host.Queue(), nil, &host.ID, taskproto.ScanDevicesParams{HostID: host.Number})
}

// HealthCheck dispatches a single-device health check.
func (p *Plane) HealthCheck(ctx context.Context, device fleet.Device, queue string) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindHealthCheck, queue, &device.ID, device.HostID, taskproto.HealthCheckParams{DeviceID: device.ID})
}

// BatchHealthCheck dispatches a health check across deviceIDs on queue.
func (p *Plane) BatchHealthCheck(ctx context.Context, hostID string, queue string, deviceIDs []string) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindBatchHealthCheck, queue, nil, &hostID, taskproto.BatchHealthCheckParams{DeviceIDs: deviceIDs})
}

// RebootDevice dispatches a reboot for device on queue.
func (p *Plane) RebootDevice(ctx context.Context, device fleet.Device, queue string) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindRebootDevice, queue, &device.ID, device.HostID, taskproto.RebootDeviceParams{DeviceID: device.ID})
}

// CollectLogs dispatches a bounded logcat collection.
func (p *Plane) CollectLogs(ctx context.Context, device fleet.Device, queue string, lines int) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindCollectLogs, queue, &device.ID, device.HostID, taskproto.CollectLogsParams{DeviceID: device.ID, Lines: lines})
}

// InstallAPK dispatches a single APK install.
func (p *Plane) InstallAPK(ctx context.Context, device fleet.Device, queue, packageName, apkPath string) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindInstallAPK, queue, &device.ID, device.HostID, taskproto.InstallAPKParams{
		DeviceID: device.ID, PackageName: packageName, APKPath: apkPath,
	})
}

// BatchInstall dispatches a bounded-parallelism batch install across
// deviceIDs (spec.md §8 scenario 6).
func (p *Plane) BatchInstall(ctx context.Context, hostID, queue, packageName, apkPath string, deviceIDs []string, batchSize int) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindBatchInstall, queue, nil, &hostID, taskproto.BatchInstallParams{
		DeviceIDs: deviceIDs, PackageName: packageName, APKPath: apkPath, BatchSize: batchSize,
	})
}

// RunYouTubeBot dispatches a YouTube automation job for device.
func (p *Plane) RunYouTubeBot(ctx context.Context, device fleet.Device, queue string, params taskproto.JobParams) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindRunYouTubeBot, queue, &device.ID, device.HostID, taskproto.RunYouTubeBotParams{
		DeviceID: device.ID, JobParams: params,
	})
}

// StopBot dispatches a stop-session request for device.
func (p *Plane) StopBot(ctx context.Context, device fleet.Device, queue string) (Dispatched, error) {
	return p.Send(ctx, taskproto.KindStopBot, queue, &device.ID, device.HostID, taskproto.StopBotParams{DeviceID: device.ID})
}
