package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

func (s *Server) mountDevices(r chi.Router) {
	r.Get("/devices", s.listDevices)
	r.Post("/devices", s.createDevice)
	r.Get("/devices/by-code/{code}", s.getDeviceByCode)
	r.Get("/devices/by-serial/{serial}", s.getDeviceBySerial)
	r.Get("/devices/by-ip/{ip}", s.getDeviceByIP)
	r.Get("/devices/online/list", s.listOnlineDevices)
	r.Post("/devices/assign", s.assignDevice)
	r.Post("/devices/bulk-register", s.bulkRegisterDevices)
	r.Get("/devices/{id}", s.getDevice)
	r.Patch("/devices/{id}", s.updateDevice)
	r.Delete("/devices/{id}", s.deleteDevice)
	r.Post("/devices/{id}/unassign", s.unassignDevice)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	f := fleet.DeviceFilter{
		HostID:         r.URL.Query().Get("host_id"),
		HostNumber:     r.URL.Query().Get("host_number"),
		Status:         fleet.DeviceStatus(r.URL.Query().Get("status")),
		Connection:     fleet.ConnectionKind(r.URL.Query().Get("connection_type")),
		UnassignedOnly: queryBool(r, "unassigned_only"),
		Page:           queryInt(r, "page", 1),
		PageSize:       queryInt(r, "page_size", 50),
	}
	devices, err := s.Fleet.ListDevices(r.Context(), f)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var d fleet.Device
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	created, err := s.Fleet.CreateDevice(r.Context(), d)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.Fleet.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) getDeviceByCode(w http.ResponseWriter, r *http.Request) {
	device, err := s.Fleet.GetDeviceByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) getDeviceBySerial(w http.ResponseWriter, r *http.Request) {
	device, err := s.Fleet.Store.GetDeviceBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) getDeviceByIP(w http.ResponseWriter, r *http.Request) {
	device, err := s.Fleet.Store.GetDeviceByIP(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	device, err := s.Fleet.UpdateDevice(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.Fleet.DeleteDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assignDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		HostID   string `json:"host_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "device_id and host_id required")
		return
	}
	device, err := s.Fleet.AssignDevice(r.Context(), req.DeviceID, req.HostID)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) unassignDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.Fleet.UnassignDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// bulkRegisterDevices registers many devices in one request — grounded
// on original_source's bulk-register endpoint for first-time host
// provisioning, where every device on a freshly imaged host arrives at
// once rather than one scan_devices task at a time.
func (s *Server) bulkRegisterDevices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Devices []fleet.Device `json:"devices"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	created := make([]fleet.Device, 0, len(req.Devices))
	var errs []string
	for _, d := range req.Devices {
		c, err := s.Fleet.CreateDevice(r.Context(), d)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		created = append(created, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registered": created,
		"errors":     errs,
	})
}

func (s *Server) listOnlineDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.Fleet.OnlineDevices(r.Context())
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}
