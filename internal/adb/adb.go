// Package adb shells out to the `adb` binary to control Android
// devices, grounded on original_source's core/adb.py ADBController
// (itself a thin wrapper over adbutils). No Go ADB client library
// appears anywhere in the example pack, so this package drives the
// adb CLI directly via os/exec — the idiomatic Go equivalent of
// shelling to a vendor tool when no library binding exists.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Controller runs adb commands against a fixed adb binary path, with
// a per-call timeout and retry policy mirroring adb.py's
// @retry(stop_after_attempt(3), wait_exponential(...)).
type Controller struct {
	BinPath string
	Timeout time.Duration
}

// New returns a Controller bound to binPath, defaulting timeout to
// 10s when zero.
func New(binPath string, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{BinPath: binPath, Timeout: timeout}
}

// DeviceInfo mirrors adb.py's DeviceInfo dataclass.
type DeviceInfo struct {
	Serial         string
	State          string
	Model          string
	AndroidVersion string
	BatteryLevel   int
	Charging       bool
	WifiIP         string
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func (c *Controller) withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)

	var out string
	err := backoff.Retry(func() error {
		var err error
		out, err = fn()
		return err
	}, policy)
	return out, err
}

// ListSerials returns every serial reported by `adb devices` in the
// "device" (ready) state, grounded on adb.py's list_devices.
func (c *Controller) ListSerials(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "devices")
	if err != nil {
		return nil, err
	}
	var serials []string
	for _, line := range strings.Split(out, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}

// DeviceInfo queries model, Android version, battery, and wifi IP for
// serial, grounded on adb.py's _get_device_info/_get_battery_info/_get_wifi_ip.
func (c *Controller) DeviceInfo(ctx context.Context, serial string) (DeviceInfo, error) {
	info := DeviceInfo{Serial: serial, State: "device"}

	if model, err := c.Shell(ctx, serial, "getprop ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if ver, err := c.Shell(ctx, serial, "getprop ro.build.version.release"); err == nil {
		info.AndroidVersion = strings.TrimSpace(ver)
	}
	if battery, err := c.Shell(ctx, serial, "dumpsys battery"); err == nil {
		level, charging := parseBattery(battery)
		info.BatteryLevel = level
		info.Charging = charging
	}
	if ip, ok := parseWifiIP(func() string {
		out, _ := c.Shell(ctx, serial, "ip addr show wlan0")
		return out
	}()); ok {
		info.WifiIP = ip
	}
	return info, nil
}

// parseBattery extracts level/charging from `dumpsys battery` output.
func parseBattery(out string) (level int, charging bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "level:"):
			if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "level:"))); err == nil {
				level = v
			}
		case strings.HasPrefix(line, "status:"):
			if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "status:"))); err == nil {
				charging = v == 2 || v == 5 // 2=charging, 5=full
			}
		}
	}
	return level, charging
}

func parseWifiIP(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "inet "); idx >= 0 {
			rest := strings.Fields(line[idx+len("inet "):])
			if len(rest) == 0 {
				continue
			}
			return strings.SplitN(rest[0], "/", 2)[0], true
		}
	}
	return "", false
}

// Shell runs `adb -s serial shell command`, retried up to 3 attempts
// with exponential backoff (adb.py's shell()).
func (c *Controller) Shell(ctx context.Context, serial, command string) (string, error) {
	return c.withRetry(ctx, func() (string, error) {
		return c.run(ctx, "-s", serial, "shell", command)
	})
}

// InstallAPK pushes and installs apkPath with -r -g flags (reinstall,
// grant permissions), retried like adb.py's install_apk.
func (c *Controller) InstallAPK(ctx context.Context, serial, apkPath string) error {
	_, err := c.withRetry(ctx, func() (string, error) {
		return c.run(ctx, "-s", serial, "install", "-r", "-g", apkPath)
	})
	return err
}

// UninstallAPK removes packageName from serial.
func (c *Controller) UninstallAPK(ctx context.Context, serial, packageName string) error {
	_, err := c.run(ctx, "-s", serial, "uninstall", packageName)
	return err
}

// PushFile copies localPath to remotePath on serial.
func (c *Controller) PushFile(ctx context.Context, serial, localPath, remotePath string) error {
	_, err := c.run(ctx, "-s", serial, "push", localPath, remotePath)
	return err
}

// Reboot issues `adb reboot` to serial.
func (c *Controller) Reboot(ctx context.Context, serial string) error {
	_, err := c.run(ctx, "-s", serial, "reboot")
	return err
}

// InstalledPackages lists third-party packages on serial (`pm list
// packages -3`), grounded on adb.py's get_installed_packages.
func (c *Controller) InstalledPackages(ctx context.Context, serial string) ([]string, error) {
	out, err := c.Shell(ctx, serial, "pm list packages -3")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "package:") {
			pkgs = append(pkgs, strings.TrimPrefix(line, "package:"))
		}
	}
	return pkgs, nil
}

// PackageVersion queries the installed versionName for packageName on
// serial via `dumpsys package`, grounded on get_package_version.
func (c *Controller) PackageVersion(ctx context.Context, serial, packageName string) (string, error) {
	out, err := c.Shell(ctx, serial, fmt.Sprintf("dumpsys package %s", packageName))
	if err != nil {
		return "", err
	}
	idx := strings.Index(out, "versionName=")
	if idx < 0 {
		return "", nil
	}
	rest := out[idx+len("versionName="):]
	return strings.Fields(rest)[0], nil
}

// CollectLogcat returns the last n lines of logcat (`logcat -d -t n`),
// grounded on device_tasks.py's collect_logs.
func (c *Controller) CollectLogcat(ctx context.Context, serial string, lines int) (string, error) {
	if lines <= 0 {
		lines = 100
	}
	return c.run(ctx, "-s", serial, "logcat", "-d", "-t", strconv.Itoa(lines))
}

// IsOnline reports whether serial is present in `adb devices` in the
// ready state.
func (c *Controller) IsOnline(ctx context.Context, serial string) (bool, error) {
	serials, err := c.ListSerials(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range serials {
		if s == serial {
			return true, nil
		}
	}
	return false, nil
}
