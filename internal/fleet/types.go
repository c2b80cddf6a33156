// Package fleet holds the Host/Device/Task entities and the Store
// boundary they are persisted through.
package fleet

import "time"

// HostStatus enumerates the lifecycle of a worker host.
type HostStatus string

const (
	HostOnline  HostStatus = "online"
	HostOffline HostStatus = "offline"
	HostError   HostStatus = "error"
)

// Host is a physical worker machine.
type Host struct {
	ID            string     `json:"id"`
	Number        string     `json:"number" validate:"required"`
	Address       string     `json:"address" validate:"required"`
	Label         string     `json:"label"`
	Location      string     `json:"location"`
	MaxDevices    int        `json:"max_devices" validate:"min=1"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	Status        HostStatus `json:"status"`
}

// Queue is the broker queue this host's worker binds to.
func (h Host) Queue() string { return lowerASCII(h.Number) }

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ConnectionKind is how a device reaches the host.
type ConnectionKind string

const (
	ConnUSB  ConnectionKind = "usb"
	ConnWiFi ConnectionKind = "wifi"
	ConnBoth ConnectionKind = "both"
)

// DeviceStatus enumerates the lifecycle of a device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceBusy    DeviceStatus = "busy"
	DeviceError   DeviceStatus = "error"
)

// Device is an Android handset owned by at most one host.
type Device struct {
	ID             string         `json:"id"`
	HostID         *string        `json:"host_id,omitempty"`
	Serial         string         `json:"serial,omitempty"`
	Address        string         `json:"address,omitempty"`
	AutomationPort int            `json:"automation_port,omitempty"`
	Model          string         `json:"model"`
	OSVersion      string         `json:"os_version"`
	Connection     ConnectionKind `json:"connection_type" validate:"oneof=usb wifi both"`
	PhysicalPort   int            `json:"physical_port" validate:"min=1,max=20"`
	DeviceNumber   int            `json:"device_number,omitempty"`
	Code           string         `json:"code"`
	Status         DeviceStatus   `json:"status"`
	BatteryLevel   int            `json:"battery_level" validate:"min=0,max=100"`
	ErrorCount     int            `json:"error_count"`
	LastError      string         `json:"last_error,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
}

// HasTransport reports the serial-XOR-address invariant from the data
// model: a device must be reachable one way, not zero or both.
func (d Device) HasTransport() bool {
	return (d.Serial != "") != (d.Address != "")
}

// Identifier returns the handle used to key a session: address when a
// network device, serial otherwise.
func (d Device) Identifier() string {
	if d.Address != "" {
		return d.Address
	}
	return d.Serial
}

// TaskStatus enumerates the task lifecycle state machine.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSuccess   TaskStatus = "success"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether a status ends a task's lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSuccess, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Task is one dispatched unit of work.
type Task struct {
	ID              string          `json:"id"`
	BrokerID        string          `json:"broker_id"`
	Kind            string          `json:"kind"`
	Queue           string          `json:"queue"`
	DeviceID        *string         `json:"device_id,omitempty"`
	HostID          *string         `json:"host_id,omitempty"`
	Payload         []byte          `json:"payload,omitempty"`
	Result          []byte          `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	Retries         int             `json:"retries"`
	Progress        int             `json:"progress" validate:"min=0,max=100"`
	ProgressMessage string          `json:"progress_message,omitempty"`
	Status          TaskStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Duration reports the task's wall-clock run time, if it has started.
func (t Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// HostSummary is an aggregate row over a host's devices.
type HostSummary struct {
	HostID        string `json:"host_id"`
	Number        string `json:"number"`
	DeviceCount   int    `json:"device_count"`
	OnlineCount   int    `json:"online_count"`
	BusyCount     int    `json:"busy_count"`
}

// TaskStats is an aggregate row over the task table.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Cancelled int `json:"cancelled"`
}
