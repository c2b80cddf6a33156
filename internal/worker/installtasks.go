package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// interWaveDelay is the pause between install waves, grounded on
// install_tasks.py's `time.sleep(2)` between `batch_size`-wide chunks.
const interWaveDelay = 2 * time.Second

// requiredApps mirrors install_tasks.py's REQUIRED_APPS table, kept
// as an ordered slice since install_all_required's chain runs them in
// a fixed sequence.
var requiredApps = []struct {
	Name    string
	Package string
}{
	{"autox.js", "org.autojs.autoxjs.v6"},
	{"youtube", "com.google.android.youtube"},
}

// InstallAPK installs a single APK on one device. The task itself is
// not retried: a failure marks it failed, and the delivery is acked
// like any other. Only the adb install call is retried, inside
// adb.Controller.InstallAPK (up to 3 attempts with backoff).
func (w *Worker) InstallAPK(ctx context.Context, taskID string, params taskproto.InstallAPKParams) error {
	w.markRunning(ctx, taskID)
	w.publishProgress(ctx, taskID, "install", 10, fmt.Sprintf("Installing %s", params.PackageName))

	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return err
	}

	w.publishProgress(ctx, taskID, "install", 30, "Pushing APK to device")
	if err := w.ADB.InstallAPK(ctx, device.Serial, params.APKPath); err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return err
	}

	version, _ := w.ADB.PackageVersion(ctx, device.Serial, params.PackageName)
	result := map[string]any{"device_id": device.ID, "package": params.PackageName, "version": version, "success": true}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, result, "")
	return nil
}

// BatchInstall installs across deviceIDs in discrete waves of
// params.BatchSize (default 5), each wave run concurrently and waited
// on before the next starts, with a 2s pause between waves — grounded
// on install_tasks.py's `for i in range(0, len, batch_size): batch =
// target_serials[i:i+5]; job.apply_async().get(); if i+batch_size <
// len: time.sleep(2)` and spec.md §8 scenario 6's {5,5,2}-wave example.
// Waves run via golang.org/x/sync/errgroup in place of Celery's
// `group()` chord.
func (w *Worker) BatchInstall(ctx context.Context, taskID string, params taskproto.BatchInstallParams) {
	w.markRunning(ctx, taskID)

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	var (
		mu      sync.Mutex
		errs    []string
		success int
		done    int
	)
	total := len(params.DeviceIDs)

	for waveStart := 0; waveStart < total; waveStart += batchSize {
		waveEnd := waveStart + batchSize
		if waveEnd > total {
			waveEnd = total
		}
		wave := params.DeviceIDs[waveStart:waveEnd]

		g, gctx := errgroup.WithContext(ctx)
		for i, deviceID := range wave {
			deviceID := deviceID
			idx := waveStart + i
			g.Go(func() error {
				sub := fmt.Sprintf("%s/%d", taskID, idx)
				err := w.InstallAPK(gctx, sub, taskproto.InstallAPKParams{
					DeviceID: deviceID, PackageName: params.PackageName, APKPath: params.APKPath,
				})

				mu.Lock()
				if err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", deviceID, err))
				} else {
					success++
				}
				done++
				n := done
				mu.Unlock()

				w.publishProgress(ctx, taskID, "batch_install", n*100/max1(total), fmt.Sprintf("%d/%d installed", n, total))
				return nil
			})
		}
		_ = g.Wait()

		if waveEnd >= total {
			break
		}
		if !w.sleep(ctx, interWaveDelay) {
			break
		}
	}

	result := taskproto.BatchInstallResult{
		Total: total, Success: success, Failed: total - success, Errors: errs,
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, result, "")
}

// UninstallAPK removes packageName from a device, grounded on
// adb.py's uninstall_apk.
func (w *Worker) UninstallAPK(ctx context.Context, taskID string, params taskproto.UninstallAPKParams) {
	w.markRunning(ctx, taskID)
	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	if err := w.ADB.UninstallAPK(ctx, device.Serial, params.PackageName); err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "package": params.PackageName}, "")
}

// CheckInstalled reports which of params.Packages are present on the
// device, grounded on install_tasks.py's check_installed_apps.
func (w *Worker) CheckInstalled(ctx context.Context, taskID string, params taskproto.CheckInstalledParams) {
	w.markRunning(ctx, taskID)
	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	installed, err := w.ADB.InstalledPackages(ctx, device.Serial)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}
	present := map[string]bool{}
	for _, p := range installed {
		present[p] = true
	}
	status := map[string]bool{}
	for _, want := range params.Packages {
		status[want] = present[want]
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "installed": status}, "")
}

// InstallAllRequired installs every app in requiredApps in sequence,
// grounded on install_tasks.py's install_all_required chain (a
// Celery `chain()`, realized here as a plain sequential loop since Go
// has no task-chaining primitive to mirror — each step's failure
// aborts the remaining chain, matching chain() semantics).
func (w *Worker) InstallAllRequired(ctx context.Context, taskID string, params taskproto.InstallAllRequiredParams) {
	w.markRunning(ctx, taskID)

	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}

	installed := make([]string, 0, len(requiredApps))
	for _, app := range requiredApps {
		apkPath := app.Name + ".apk"
		if err := w.ADB.InstallAPK(ctx, device.Serial, apkPath); err != nil {
			w.markTerminal(ctx, taskID, fleet.TaskFailed, map[string]any{"installed": installed}, fmt.Sprintf("install %s: %v", app.Name, err))
			return
		}
		installed = append(installed, app.Package)
		w.publishProgress(ctx, taskID, "install_all_required", len(installed)*100/len(requiredApps), fmt.Sprintf("installed %s", app.Name))
	}

	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "installed": installed}, "")
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
