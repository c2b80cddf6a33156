package taskproto

// ── device_tasks ──────────────────────────────────────────────────

// ScanDevicesParams grounds tasks.device_tasks.scan_devices
// (original_source device_tasks.py: scan_devices).
type ScanDevicesParams struct {
	HostID string `json:"host_id"`
}

// HealthCheckParams grounds tasks.device_tasks.health_check.
type HealthCheckParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
}

// HealthCheckResult is the terminal result written back for a single
// health check (battery level parsed from `dumpsys battery`).
type HealthCheckResult struct {
	DeviceID     string `json:"device_id"`
	Online       bool   `json:"online"`
	BatteryLevel int    `json:"battery_level"`
	Error        string `json:"error,omitempty"`
}

// BatchHealthCheckParams grounds tasks.device_tasks.batch_health_check.
type BatchHealthCheckParams struct {
	TaskID    string   `json:"task_id"`
	DeviceIDs []string `json:"device_ids"`
}

// RebootDeviceParams grounds tasks.device_tasks.reboot_device.
type RebootDeviceParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
}

// CollectLogsParams grounds tasks.device_tasks.collect_logs
// (logcat -d -t <lines>).
type CollectLogsParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
	Lines    int    `json:"lines"`
}

// PushScriptParams grounds the push-script worker task kind named in
// spec.md §4.H "other worker task kinds".
type PushScriptParams struct {
	TaskID       string `json:"task_id"`
	DeviceID     string `json:"device_id"`
	ScriptPath   string `json:"script_path"`
	RemotePath   string `json:"remote_path"`
	ExecuteAfter bool   `json:"execute_after"`
}

// ── install_tasks ─────────────────────────────────────────────────

// InstallAPKParams grounds tasks.install_tasks.install_apk.
type InstallAPKParams struct {
	TaskID      string `json:"task_id"`
	DeviceID    string `json:"device_id"`
	PackageName string `json:"package_name"`
	APKPath     string `json:"apk_path"`
}

// BatchInstallParams grounds tasks.install_tasks.batch_install — the
// bounded-parallelism scenario from spec.md §8 scenario 6.
type BatchInstallParams struct {
	TaskID      string   `json:"task_id"`
	DeviceIDs   []string `json:"device_ids"`
	PackageName string   `json:"package_name"`
	APKPath     string   `json:"apk_path"`
	BatchSize   int      `json:"batch_size"`
}

// BatchInstallResult aggregates per-device install outcomes.
type BatchInstallResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// UninstallAPKParams grounds tasks.install_tasks.uninstall_apk.
type UninstallAPKParams struct {
	TaskID      string `json:"task_id"`
	DeviceID    string `json:"device_id"`
	PackageName string `json:"package_name"`
}

// CheckInstalledParams grounds tasks.install_tasks.check_installed_apps.
type CheckInstalledParams struct {
	TaskID    string   `json:"task_id"`
	DeviceID  string   `json:"device_id"`
	Packages  []string `json:"packages"`
}

// InstallAllRequiredParams grounds tasks.install_tasks.install_all_required.
type InstallAllRequiredParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
}

// ── youtube_tasks / appium_tasks ──────────────────────────────────

// JobParams is the orchestrator's input (spec.md §4.G), carried
// verbatim as the run_youtube_appium task payload.
type JobParams struct {
	AssignmentID    string  `json:"assignment_id"`
	TargetURL       string  `json:"target_url,omitempty"`
	Keyword         string  `json:"keyword,omitempty"`
	VideoTitle      string  `json:"video_title,omitempty"`
	DurationSec     int     `json:"duration_sec"`
	DurationMinPct  int     `json:"duration_min_pct"`
	DurationMaxPct  int     `json:"duration_max_pct"`
	ProbLike        int     `json:"prob_like"`
	ProbComment     int     `json:"prob_comment"`
	ProbSubscribe   int     `json:"prob_subscribe"`
	ProbPlaylist    int     `json:"prob_playlist"`
	CommentText     string  `json:"comment_text,omitempty"`
}

// RunYouTubeBotParams wraps JobParams with dispatch routing fields.
type RunYouTubeBotParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
	JobParams
}

// StopBotParams grounds tasks.youtube_tasks.stop_appium_session. Its
// device identifier travels in the JSON body, matching the body
// convention every other dispatch endpoint uses (SPEC_FULL.md §9,
// resolving the stop-bot Open Question).
type StopBotParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
}

// AppiumHealthCheckParams grounds tasks.appium_tasks.appium_health_check.
type AppiumHealthCheckParams struct {
	TaskID   string `json:"task_id"`
	DeviceID string `json:"device_id"`
}

// JobResult is the orchestrator's output (spec.md §4.G step 8: "never
// throws" — always returns a JobResult).
type JobResult struct {
	Success         bool     `json:"success"`
	SearchSuccess   bool     `json:"search_success"`
	WatchDurationS  float64  `json:"watch_duration_sec"`
	DidLike         bool     `json:"did_like"`
	DidComment      bool     `json:"did_comment"`
	DidSubscribe    bool     `json:"did_subscribe"`
	DidPlaylist     bool     `json:"did_playlist"`
	AdsDetected     int      `json:"ads_detected"`
	AdsSkipped      int      `json:"ads_skipped"`
	ErrorCode       string   `json:"error_code,omitempty"`
	Error           string   `json:"error,omitempty"`
	EvidenceDir     string   `json:"evidence_dir,omitempty"`
	EvidenceFiles   []string `json:"evidence_files,omitempty"`
}

// ProgressPayload is published on "progress.<task_id>" for the
// progress broadcast hub (component M) and for broker-task meta
// updates (spec.md §4.H step 2).
type ProgressPayload struct {
	TaskID   string `json:"task_id"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// AlertPayload is published on "alerts.task_failed" whenever a worker
// writes a terminal-failure status, for the optional outbound alert
// sink (internal/notify) to pick up.
type AlertPayload struct {
	TaskID   string `json:"task_id"`
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id,omitempty"`
	HostID   string `json:"host_id,omitempty"`
	Error    string `json:"error"`
}
