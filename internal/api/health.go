package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doai-fleet/farmctl/internal/health"
)

// mountHealth wires component K's endpoints, grounded on
// original_source's routers/health.py and routers/appium.py. Outside
// the rate-limited group: polled by dashboards/orchestrators too
// frequently to throttle.
func (s *Server) mountHealth(r chi.Router) {
	r.Get("/health", s.healthBasic)
	r.Get("/health/status", s.healthStatus)
	r.Get("/health/ready", s.healthReady)
	r.Get("/health/live", s.healthLive)
	r.Get("/health/workers", s.healthWorkers)
	r.Get("/health/queues", s.healthQueues)
	r.Get("/appium/metrics", s.appiumMetrics)
	r.Get("/appium/health", s.appiumHealth)
}

func (s *Server) healthBasic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health.Basic())
}

func (s *Server) healthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health.Status(r.Context()))
}

func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	ok, reason := s.Health.Readiness(r.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	body := map[string]any{"ready": ok}
	if reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, code, body)
}

func (s *Server) healthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": s.Health.Liveness()})
}

// healthWorkers and healthQueues both derive from Status's worker
// enumeration — original_source computes them from the same
// inspect.active_queues() call, so this mirrors that shared source of
// truth instead of issuing a second probe.
func (s *Server) healthWorkers(w http.ResponseWriter, r *http.Request) {
	status := s.Health.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": status.Workers,
		"total":   len(status.Workers),
	})
}

func (s *Server) healthQueues(w http.ResponseWriter, r *http.Request) {
	status := s.Health.Status(r.Context())
	seen := map[string][]string{}
	var order []string
	for _, wk := range status.Workers {
		for _, q := range wk.Queues {
			if _, ok := seen[q]; !ok {
				order = append(order, q)
			}
			seen[q] = append(seen[q], wk.Name)
		}
	}
	queues := make([]map[string]any, 0, len(order))
	for _, q := range order {
		queues = append(queues, map[string]any{"name": q, "workers": seen[q]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": queues, "total": len(queues)})
}

// appiumMetrics implements the union described at spec.md §4.K: a
// direct automation-server probe plus a worker-queue round trip,
// merged. ?queue= selects which worker to ask; original_source
// hardcodes "pc01", this module defaults to "default" when omitted.
func (s *Server) appiumMetrics(w http.ResponseWriter, r *http.Request) {
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		queue = "default"
	}

	direct := health.ProbeAutomationURL(r.Context(), s.Health.AutomationURL)
	viaWorker, err := s.Health.AutomationMetricsViaWorker(r.Context(), queue)

	out := map[string]any{
		"appium_ready":    direct.Ready || viaWorker.Ready,
		"active_sessions": viaWorker.ActiveSessions,
		"max_sessions":    viaWorker.MaxSessions,
		"available_ports": viaWorker.AvailablePorts,
		"used_ports":      viaWorker.UsedPorts,
		"active_devices":  viaWorker.ActiveDevices,
	}
	if err != nil {
		out["worker_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) appiumHealth(w http.ResponseWriter, r *http.Request) {
	direct := health.ProbeAutomationURL(r.Context(), s.Health.AutomationURL)
	writeJSON(w, http.StatusOK, map[string]any{
		"appium_ready": direct.Ready,
		"appium_url":   s.Health.AutomationURL,
	})
}
