package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

func (s *Server) mountTasks(r chi.Router) {
	r.Get("/tasks", s.listTasks)
	r.Get("/tasks/stats", s.taskStats)
	r.Get("/tasks/recent", s.recentTasks)
	r.Get("/tasks/{id}", s.getTask)
	r.Get("/tasks/{id}/celery-status", s.brokerStatus)
	r.Post("/tasks/{id}/cancel", s.cancelTask)

	r.Post("/tasks/install", s.dispatchInstall)
	r.Post("/tasks/batch-install", s.dispatchBatchInstall)
	r.Post("/tasks/health-check", s.dispatchHealthCheck)
	r.Post("/tasks/batch-health-check", s.dispatchBatchHealthCheck)
	r.Post("/tasks/scan-devices", s.dispatchScanDevices)
	r.Post("/tasks/run-bot", s.dispatchRunBot)
	r.Post("/tasks/stop-bot", s.dispatchStopBot)
	r.Post("/tasks/run-appium-bot", s.dispatchRunBot)
	r.Post("/tasks/stop-appium-session", s.dispatchStopBot)
	r.Post("/tasks/appium-health-check", s.dispatchAppiumHealthCheck)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	f := fleet.TaskFilter{
		Status:   fleet.TaskStatus(r.URL.Query().Get("status")),
		Kind:     r.URL.Query().Get("kind"),
		DeviceID: r.URL.Query().Get("device_id"),
		HostID:   r.URL.Query().Get("host_id"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}
	tasks, err := s.Dispatch.List(r.Context(), f)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) taskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Dispatch.Stats(r.Context())
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) recentTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Dispatch.Recent(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Dispatch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// brokerStatus answers GET /api/tasks/{id}/celery-status — named after
// the Celery-era endpoint it replaces; see dispatch.BrokerStatus for
// why both returned fields derive from the same DB row in this design.
func (s *Server) brokerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Dispatch.GetBrokerStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Dispatch.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// resolveDeviceQueue loads the device and its owning host, erroring
// when the device is unassigned (spec.md §7 validation error).
func (s *Server) resolveDeviceQueue(r *http.Request, deviceID string) (fleet.Device, string, error) {
	device, err := s.Fleet.GetDevice(r.Context(), deviceID)
	if err != nil {
		return fleet.Device{}, "", err
	}
	if device.HostID == nil {
		return fleet.Device{}, "", fmt.Errorf("invalid device %s: unassigned to a host", deviceID)
	}
	host, err := s.Fleet.GetHost(r.Context(), *device.HostID)
	if err != nil {
		return fleet.Device{}, "", err
	}
	return device, host.Queue(), nil
}

func (s *Server) dispatchInstall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID    string `json:"device_id"`
		PackageName string `json:"package_name"`
		APKPath     string `json:"apk_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, queue, err := s.resolveDeviceQueue(r, req.DeviceID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.InstallAPK(r.Context(), device, queue, req.PackageName, req.APKPath)
	})
}

func (s *Server) dispatchBatchInstall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID      string   `json:"host_id"`
		DeviceIDs   []string `json:"device_ids"`
		PackageName string   `json:"package_name"`
		APKPath     string   `json:"apk_path"`
		BatchSize   int      `json:"batch_size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	host, err := s.Fleet.GetHost(r.Context(), req.HostID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.BatchInstall(r.Context(), req.HostID, host.Queue(), req.PackageName, req.APKPath, req.DeviceIDs, req.BatchSize)
	})
}

func (s *Server) dispatchHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, queue, err := s.resolveDeviceQueue(r, req.DeviceID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.HealthCheck(r.Context(), device, queue)
	})
}

func (s *Server) dispatchBatchHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID    string   `json:"host_id"`
		DeviceIDs []string `json:"device_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	host, err := s.Fleet.GetHost(r.Context(), req.HostID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.BatchHealthCheck(r.Context(), req.HostID, host.Queue(), req.DeviceIDs)
	})
}

func (s *Server) dispatchScanDevices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID string `json:"host_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	host, err := s.Fleet.GetHost(r.Context(), req.HostID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.ScanDevices(r.Context(), host)
	})
}

// dispatchRunBot serves both /tasks/run-bot and /tasks/run-appium-bot
// (spec.md §9 Open Questions: the source's AutoX.js and Appium
// YouTube-bot flows are unified behind the one Appium-based
// orchestrator this module implements — see SPEC_FULL.md).
func (s *Server) dispatchRunBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		taskproto.JobParams
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, queue, err := s.resolveDeviceQueue(r, req.DeviceID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.RunYouTubeBot(r.Context(), device, queue, req.JobParams)
	})
}

// dispatchStopBot serves both /tasks/stop-bot and
// /tasks/stop-appium-session. device_id travels in the JSON body for
// both, per the Open Question resolution in SPEC_FULL.md §9.
func (s *Server) dispatchStopBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, queue, err := s.resolveDeviceQueue(r, req.DeviceID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.StopBot(r.Context(), device, queue)
	})
}

func (s *Server) dispatchAppiumHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, queue, err := s.resolveDeviceQueue(r, req.DeviceID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	s.respondDispatch(w, r, func() (dispatch.Dispatched, error) {
		return s.Dispatch.Send(r.Context(), taskproto.KindAppiumHealthCheck, queue, &device.ID, device.HostID, taskproto.AppiumHealthCheckParams{DeviceID: device.ID})
	})
}

// respondDispatch runs send and writes its {task_id, broker_id} result
// (spec.md §6: "each returns {task_id, broker_id}").
func (s *Server) respondDispatch(w http.ResponseWriter, r *http.Request, send func() (dispatch.Dispatched, error)) {
	d, err := send()
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}
