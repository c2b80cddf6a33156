package fleet

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("fleet: not found")

// HostFilter narrows ListHosts.
type HostFilter struct {
	Status   HostStatus
	Page     int
	PageSize int
}

// DeviceFilter narrows ListDevices.
type DeviceFilter struct {
	HostID          string
	HostNumber      string
	Status          DeviceStatus
	Connection      ConnectionKind
	UnassignedOnly  bool
	Page            int
	PageSize        int
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Status   TaskStatus
	Kind     string
	DeviceID string
	HostID   string
	Page     int
	PageSize int
}

// Store is the persistence boundary the core consumes (spec §1, §6).
// It is implemented by internal/fleet's Postgres adapter; the core
// components never depend on Postgres directly.
type Store interface {
	CreateHost(ctx context.Context, h Host) (Host, error)
	GetHost(ctx context.Context, id string) (Host, error)
	GetHostByNumber(ctx context.Context, number string) (Host, error)
	ListHosts(ctx context.Context, f HostFilter) ([]Host, error)
	UpdateHost(ctx context.Context, id string, patch map[string]any) (Host, error)
	DeleteHost(ctx context.Context, id string) error
	Heartbeat(ctx context.Context, number string) error
	HostSummaries(ctx context.Context) ([]HostSummary, error)

	CreateDevice(ctx context.Context, d Device) (Device, error)
	GetDevice(ctx context.Context, id string) (Device, error)
	GetDeviceByCode(ctx context.Context, code string) (Device, error)
	GetDeviceBySerial(ctx context.Context, serial string) (Device, error)
	GetDeviceByIP(ctx context.Context, ip string) (Device, error)
	ListDevices(ctx context.Context, f DeviceFilter) ([]Device, error)
	UpdateDevice(ctx context.Context, id string, patch map[string]any) (Device, error)
	DeleteDevice(ctx context.Context, id string) error
	AssignDevice(ctx context.Context, deviceID, hostID string) (Device, error)
	UnassignDevice(ctx context.Context, deviceID string) (Device, error)
	OnlineDevices(ctx context.Context) ([]Device, error)

	CreateTask(ctx context.Context, t Task) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	GetTaskByBrokerID(ctx context.Context, brokerID string) (Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, patch map[string]any) (Task, error)
	IncrementTaskRetry(ctx context.Context, id string) (int, error)
	RecentTasks(ctx context.Context, limit int) ([]Task, error)
	TaskStatistics(ctx context.Context) (TaskStats, error)

	Ping(ctx context.Context) error
	Close()
}
