package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionPool is component C: a systemPort-uniqueness session manager,
// grounded on appium_core/session_manager.py's SessionManager.
type SessionPool struct {
	automationURL string
	maxSessions   int
	log           zerolog.Logger

	mu         sync.Mutex
	freePorts  map[int]struct{}
	usedPorts  map[string]int // device udid -> systemPort
	sessions   map[string]*Driver
}

// NewSessionPool builds a pool with a systemPort range of
// [portLow, portHigh] inclusive, matching the spec's 8200-8300 band.
func NewSessionPool(automationURL string, portLow, portHigh, maxSessions int, log zerolog.Logger) *SessionPool {
	free := make(map[int]struct{}, portHigh-portLow+1)
	for p := portLow; p <= portHigh; p++ {
		free[p] = struct{}{}
	}
	return &SessionPool{
		automationURL: automationURL,
		maxSessions:   maxSessions,
		log:           log,
		freePorts:     free,
		usedPorts:     map[string]int{},
		sessions:      map[string]*Driver{},
	}
}

func (p *SessionPool) allocatePort(udid string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port, ok := p.usedPorts[udid]; ok {
		return port, nil
	}
	if len(p.freePorts) == 0 {
		return 0, ErrSessionExhausted
	}
	port := minKey(p.freePorts)
	delete(p.freePorts, port)
	p.usedPorts[udid] = port
	return port, nil
}

func (p *SessionPool) releasePort(udid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port, ok := p.usedPorts[udid]; ok {
		delete(p.usedPorts, udid)
		p.freePorts[port] = struct{}{}
	}
}

// ActiveSessionCount is the pool's current live-session gauge.
func (p *SessionPool) ActiveSessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// CreateSession reuses a live session for udid if one exists and
// answers a liveness probe; otherwise it allocates a port, builds
// capabilities, and opens a fresh WebDriver session.
func (p *SessionPool) CreateSession(ctx context.Context, udid, appPackage, appActivity string, noReset bool, newCommandTimeoutSec int) (*Driver, error) {
	p.mu.Lock()
	existing, ok := p.sessions[udid]
	p.mu.Unlock()
	if ok {
		if _, _, err := existing.WindowSize(ctx); err == nil {
			p.log.Info().Str("device", udid).Msg("reusing existing appium session")
			return existing, nil
		}
		p.log.Warn().Str("device", udid).Msg("stale session found, cleaning up")
		p.CloseSession(ctx, udid)
	}

	if p.ActiveSessionCount() >= p.maxSessions {
		return nil, fmt.Errorf("%w: max sessions (%d) reached", ErrSessionExhausted, p.maxSessions)
	}

	port, err := p.allocatePort(udid)
	if err != nil {
		return nil, err
	}

	caps := BuildCapabilities(udid, port, appPackage, appActivity, noReset, newCommandTimeoutSec)
	p.log.Info().Str("device", udid).Int("system_port", port).Msg("creating appium session")

	drv, err := NewSession(ctx, p.automationURL, caps)
	if err != nil {
		p.releasePort(udid)
		p.log.Error().Err(err).Str("device", udid).Msg("failed to create appium session")
		return nil, err
	}

	p.mu.Lock()
	p.sessions[udid] = drv
	p.mu.Unlock()
	p.log.Info().Str("device", udid).Str("session_id", drv.SessionID()).Msg("appium session created")
	return drv, nil
}

// GetSession returns the live driver for udid, or nil if absent.
func (p *SessionPool) GetSession(udid string) *Driver {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[udid]
}

// CloseSession quits the driver (best-effort) and releases its port.
func (p *SessionPool) CloseSession(ctx context.Context, udid string) {
	p.mu.Lock()
	drv, ok := p.sessions[udid]
	delete(p.sessions, udid)
	p.mu.Unlock()
	if ok {
		if err := drv.Quit(ctx); err != nil {
			p.log.Warn().Err(err).Str("device", udid).Msg("error closing appium session")
		} else {
			p.log.Info().Str("device", udid).Msg("appium session closed")
		}
	}
	p.releasePort(udid)
}

// CloseAll tears down every live session.
func (p *SessionPool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	udids := make([]string, 0, len(p.sessions))
	for u := range p.sessions {
		udids = append(udids, u)
	}
	p.mu.Unlock()
	for _, u := range udids {
		p.CloseSession(ctx, u)
	}
	p.log.Info().Msg("all appium sessions closed")
}

// CleanupStale probes every live session with a window-size call and
// tears down any that fail to respond, matching
// session_manager.py's cleanup_stale_sessions (invoked by the worker's
// periodic reaper, SPEC_FULL.md §4.C).
func (p *SessionPool) CleanupStale(ctx context.Context) int {
	p.mu.Lock()
	snapshot := make(map[string]*Driver, len(p.sessions))
	for u, d := range p.sessions {
		snapshot[u] = d
	}
	p.mu.Unlock()

	var stale []string
	for udid, drv := range snapshot {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, _, err := drv.WindowSize(probeCtx)
		cancel()
		if err != nil {
			stale = append(stale, udid)
		}
	}

	for _, udid := range stale {
		p.log.Info().Str("device", udid).Msg("cleaning stale appium session")
		p.CloseSession(ctx, udid)
	}
	if len(stale) > 0 {
		p.log.Info().Int("count", len(stale)).Msg("cleaned stale appium sessions")
	}
	return len(stale)
}

// Metrics is the pool's point-in-time gauge snapshot.
type Metrics struct {
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int            `json:"max_sessions"`
	AvailablePorts int            `json:"available_ports"`
	UsedPorts      map[string]int `json:"used_ports"`
	ActiveDevices  []string       `json:"active_devices"`
}

func (p *SessionPool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := make(map[string]int, len(p.usedPorts))
	for k, v := range p.usedPorts {
		used[k] = v
	}
	devices := make([]string, 0, len(p.sessions))
	for u := range p.sessions {
		devices = append(devices, u)
	}
	return Metrics{
		ActiveSessions: len(p.sessions),
		MaxSessions:    p.maxSessions,
		AvailablePorts: len(p.freePorts),
		UsedPorts:      used,
		ActiveDevices:  devices,
	}
}

// HealthCheck reports whether the underlying automation server itself
// answers /status.
func (p *SessionPool) HealthCheck(ctx context.Context) map[string]any {
	ready, err := Status(ctx, p.automationURL, 10*time.Second)
	result := map[string]any{
		"appium_ready":     ready,
		"active_sessions":  p.ActiveSessionCount(),
		"available_ports":  p.portsAvailable(),
	}
	if err != nil {
		result["appium_ready"] = false
		result["error"] = err.Error()
	}
	return result
}

func (p *SessionPool) portsAvailable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freePorts)
}

func minKey(m map[int]struct{}) int {
	first := true
	var min int
	for k := range m {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}
