// Package health implements component K: the health surface consumed
// by orchestrators and dashboards, grounded on
// original_source/apps/server/routers/health.py (basic/status/ready/
// live/workers/queues) and reworked around this module's actual
// subsystems (Postgres, AMQP, the fleet store) instead of
// Supabase/Celery/Redis.
package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/fleetsvc"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

const probeTimeout = 3 * time.Second

// Service answers readiness, liveness, system status, and
// automation-server metrics queries (spec.md §4.K).
type Service struct {
	Store         fleet.Store
	Broker        broker.Broker
	Fleet         *fleetsvc.Service
	Dispatch      *dispatch.Plane
	AutomationURL string
	AppName       string
	AppVersion    string

	checks *metrics
}

type metrics struct {
	readyGauge    prometheus.Gauge
	overallGauge  prometheus.Gauge
	probeDuration *prometheus.HistogramVec
}

// New builds a health Service and registers its Prometheus collectors
// against reg (pass prometheus.DefaultRegisterer in production,
// a fresh prometheus.NewRegistry() in tests).
func New(store fleet.Store, b broker.Broker, fleetSvc *fleetsvc.Service, dispatchPlane *dispatch.Plane, automationURL, appName, appVersion string, reg prometheus.Registerer) *Service {
	factory := promauto.With(reg)
	return &Service{
		Store:         store,
		Broker:        b,
		Fleet:         fleetSvc,
		Dispatch:      dispatchPlane,
		AutomationURL: automationURL,
		AppName:       appName,
		AppVersion:    appVersion,
		checks: &metrics{
			readyGauge:   factory.NewGauge(prometheus.GaugeOpts{Name: "farmctl_ready", Help: "1 if the last readiness probe succeeded"}),
			overallGauge: factory.NewGauge(prometheus.GaugeOpts{Name: "farmctl_healthy", Help: "1 if the last system status was healthy"}),
			probeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name: "farmctl_health_probe_duration_seconds",
				Help: "duration of each health subsystem probe",
			}, []string{"subsystem"}),
		},
	}
}

// Basic answers GET /health: a static identity payload, no subsystem
// probes.
func (s *Service) Basic() map[string]any {
	return map[string]any{
		"status":  "healthy",
		"app":     s.AppName,
		"version": s.AppVersion,
	}
}

// Readiness answers GET /health/ready: at least one round-trip to the
// persistence layer must succeed.
func (s *Service) Readiness(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := s.Store.Ping(ctx)
	s.checks.probeDuration.WithLabelValues("database").Observe(time.Since(start).Seconds())

	if err != nil {
		s.checks.readyGauge.Set(0)
		return false, "database not available: " + err.Error()
	}
	s.checks.readyGauge.Set(1)
	return true, ""
}

// Liveness answers GET /health/live: always true once the process can
// run this handler at all.
func (s *Service) Liveness() bool { return true }

// WorkerInfo is one online host reporting as a worker, identified by
// the per-host queue it subscribes to (spec.md §6 queue=host_number).
type WorkerInfo struct {
	Name   string `json:"name"`
	Queues []string `json:"queues"`
	Status string `json:"status"`
}

// SystemStatus is the GET /health/status response.
type SystemStatus struct {
	Database string             `json:"database"`
	Broker   string             `json:"broker"`
	Workers  []WorkerInfo       `json:"workers"`
	Fleet    []fleet.HostSummary `json:"fleet"`
	Tasks    fleet.TaskStats    `json:"tasks"`
	Overall  string             `json:"overall"`
}

// Status answers GET /health/status (spec.md §4.K): persistence ping,
// broker ping, enumerated online workers with their subscribed
// queues, fleet summary, task statistics. Any subsystem failure
// degrades the overall verdict.
func (s *Service) Status(ctx context.Context) SystemStatus {
	out := SystemStatus{Database: "unknown", Broker: "unknown"}
	healthy := true

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.Store.Ping(ctx); err != nil {
		out.Database = "error: " + err.Error()
		healthy = false
	} else {
		out.Database = "healthy"
	}
	s.checks.probeDuration.WithLabelValues("database").Observe(time.Since(start).Seconds())

	start = time.Now()
	if _, err := s.Broker.Publish(ctx, "health.ping", []byte("ping")); err != nil {
		out.Broker = "error: " + err.Error()
		healthy = false
	} else {
		out.Broker = "healthy"
	}
	s.checks.probeDuration.WithLabelValues("broker").Observe(time.Since(start).Seconds())

	hosts, err := s.Fleet.ListHosts(ctx, fleet.HostFilter{Status: fleet.HostOnline})
	if err != nil {
		healthy = false
	}
	for _, h := range hosts {
		out.Workers = append(out.Workers, WorkerInfo{
			Name:   h.Number,
			Queues: []string{queueName(h.Number), "default"},
			Status: "online",
		})
	}

	if summary, err := s.Fleet.HostSummaries(ctx); err == nil {
		out.Fleet = summary
	} else {
		healthy = false
	}

	if stats, err := s.Dispatch.Stats(ctx); err == nil {
		out.Tasks = stats
	} else {
		healthy = false
	}

	if healthy {
		out.Overall = "healthy"
		s.checks.overallGauge.Set(1)
	} else {
		out.Overall = "degraded"
		s.checks.overallGauge.Set(0)
	}
	return out
}

// AutomationMetrics is the GET /health/automation response (spec.md
// §4.K "Automation-server metrics").
type AutomationMetrics struct {
	Ready          bool           `json:"ready"`
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int            `json:"max_sessions"`
	AvailablePorts int            `json:"available_ports"`
	UsedPorts      map[string]int `json:"used_ports"`
	ActiveDevices  []string       `json:"active_devices"`
	Source         string         `json:"source"`
}

// AutomationMetricsFromPool builds AutomationMetrics for a worker
// process that owns the pool directly — the common case, since each
// worker is colocated with its automation server.
func AutomationMetricsFromPool(ctx context.Context, pool *automation.SessionPool) AutomationMetrics {
	m := pool.Metrics()
	probe := pool.HealthCheck(ctx)
	ready, _ := probe["appium_ready"].(bool)
	return AutomationMetrics{
		Ready:          ready,
		ActiveSessions: m.ActiveSessions,
		MaxSessions:    m.MaxSessions,
		AvailablePorts: m.AvailablePorts,
		UsedPorts:      m.UsedPorts,
		ActiveDevices:  m.ActiveDevices,
		Source:         "pool",
	}
}

// ProbeAutomationURL implements the API-side half of spec.md §4.K's
// union: a direct, 3s-timeout GET against the automation server's own
// /status endpoint, independent of any particular worker's pool
// state. The API process has no SessionPool of its own, so this is
// the only signal it can gather without routing through a worker.
func ProbeAutomationURL(ctx context.Context, automationURL string) AutomationMetrics {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	ready, err := automation.Status(ctx, automationURL, probeTimeout)
	return AutomationMetrics{Ready: ready && err == nil, Source: "status_endpoint"}
}

// AutomationMetricsViaWorker implements the other half of spec.md
// §4.K's union: it dispatches one appium_health_check task onto
// queue and polls the task row for up to 3s, decoding whatever the
// worker's AppiumHealthCheck adapter wrote back (pool Metrics plus the
// automation server's own /status probe, taken from inside the
// worker process that actually owns the SessionPool).
func (s *Service) AutomationMetricsViaWorker(ctx context.Context, queue string) (AutomationMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	disp, err := s.Dispatch.Send(ctx, taskproto.KindAppiumHealthCheck, queue, nil, nil, taskproto.AppiumHealthCheckParams{})
	if err != nil {
		return AutomationMetrics{}, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return AutomationMetrics{Source: "worker_queue"}, ctx.Err()
		case <-ticker.C:
			task, err := s.Store.GetTask(ctx, disp.TaskID)
			if err != nil || !task.Status.Terminal() {
				continue
			}
			var body struct {
				Health  map[string]any    `json:"health"`
				Metrics automation.Metrics `json:"metrics"`
			}
			if err := json.Unmarshal(task.Result, &body); err != nil {
				return AutomationMetrics{Source: "worker_queue"}, err
			}
			ready, _ := body.Health["appium_ready"].(bool)
			return AutomationMetrics{
				Ready:          ready,
				ActiveSessions: body.Metrics.ActiveSessions,
				MaxSessions:    body.Metrics.MaxSessions,
				AvailablePorts: body.Metrics.AvailablePorts,
				UsedPorts:      body.Metrics.UsedPorts,
				ActiveDevices:  body.Metrics.ActiveDevices,
				Source:         "worker_queue",
			}, nil
		}
	}
}

func queueName(hostNumber string) string {
	b := []byte(hostNumber)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
