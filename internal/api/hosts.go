package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

func (s *Server) mountHosts(r chi.Router) {
	r.Get("/hosts", s.listHosts)
	r.Post("/hosts", s.createHost)
	r.Get("/hosts/summary", s.hostSummaries)
	r.Get("/hosts/{number}", s.getHostByNumber)
	r.Patch("/hosts/{id}", s.updateHost)
	r.Delete("/hosts/{id}", s.deleteHost)
	r.Post("/hosts/{number}/heartbeat", s.heartbeatHost)
}

func (s *Server) listHosts(w http.ResponseWriter, r *http.Request) {
	f := fleet.HostFilter{
		Status:   fleet.HostStatus(r.URL.Query().Get("status")),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}
	hosts, err := s.Fleet.ListHosts(r.Context(), f)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) createHost(w http.ResponseWriter, r *http.Request) {
	var h fleet.Host
	if err := decodeJSON(r, &h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	created, err := s.Fleet.CreateHost(r.Context(), h)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) hostSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.Fleet.HostSummaries(r.Context())
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) getHostByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	host, err := s.Fleet.Store.GetHostByNumber(r.Context(), number)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (s *Server) updateHost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	host, err := s.Fleet.UpdateHost(r.Context(), id, patch)
	if err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (s *Server) deleteHost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Fleet.DeleteHost(r.Context(), id); err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) heartbeatHost(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := s.Fleet.Heartbeat(r.Context(), number); err != nil {
		respondErr(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) logErr(msg string, err error) {
	s.Log.Error().Err(err).Msg(msg)
}
