// Package taskproto defines the wire contract published on the
// broker: every dispatched task is schema-checked at both ends
// (SPEC_FULL.md §9), generalizing the teacher's shared/events
// envelope pattern with a generic Wrap/Unwrap pair.
package taskproto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names a dotted broker task path (spec.md §6: "tasks named by
// dotted path").
type Kind string

const (
	KindScanDevices         Kind = "tasks.device_tasks.scan_devices"
	KindHealthCheck         Kind = "tasks.device_tasks.health_check"
	KindBatchHealthCheck    Kind = "tasks.device_tasks.batch_health_check"
	KindRebootDevice        Kind = "tasks.device_tasks.reboot_device"
	KindCollectLogs         Kind = "tasks.device_tasks.collect_logs"
	KindPushScript          Kind = "tasks.device_tasks.push_script"
	KindInstallAPK          Kind = "tasks.install_tasks.install_apk"
	KindBatchInstall        Kind = "tasks.install_tasks.batch_install"
	KindUninstallAPK        Kind = "tasks.install_tasks.uninstall_apk"
	KindCheckInstalled      Kind = "tasks.install_tasks.check_installed_apps"
	KindInstallAllRequired  Kind = "tasks.install_tasks.install_all_required"
	KindRunYouTubeBot       Kind = "tasks.youtube_tasks.run_youtube_appium"
	KindStopBot             Kind = "tasks.youtube_tasks.stop_appium_session"
	KindAppiumHealthCheck   Kind = "tasks.appium_tasks.appium_health_check"
)

// Envelope wraps every message published on the broker.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// Wrap marshals payload and wraps it in an Envelope under kind.
func Wrap(kind Kind, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", kind, err)
	}
	env := Envelope{ID: uuid.NewString(), Kind: kind, Timestamp: time.Now(), Payload: p}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for %s: %w", kind, err)
	}
	return b, nil
}

// Unwrap decodes raw into an Envelope and then its typed payload.
func Unwrap[T any](raw []byte) (Envelope, T, error) {
	var env Envelope
	var payload T
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, payload, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return Envelope{}, payload, fmt.Errorf("unmarshal %s payload: %w", env.Kind, err)
	}
	return env, payload, nil
}

// PeekKind decodes only the envelope, leaving Payload raw — used by
// dispatch points that branch on kind before picking a concrete type.
func PeekKind(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}
