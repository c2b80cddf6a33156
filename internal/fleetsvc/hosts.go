package fleetsvc

import (
	"context"
	"fmt"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// Service wraps a fleet.Store with validation and cross-entity rules
// (spec.md §4.J).
type Service struct {
	Store fleet.Store
}

// New builds a fleetsvc.Service.
func New(store fleet.Store) *Service { return &Service{Store: store} }

// CreateHost validates and persists a new host.
func (s *Service) CreateHost(ctx context.Context, h fleet.Host) (fleet.Host, error) {
	if h.Status == "" {
		h.Status = fleet.HostOffline
	}
	if err := ValidateHost(h); err != nil {
		return fleet.Host{}, err
	}
	return s.Store.CreateHost(ctx, h)
}

// GetHost fetches a host by id.
func (s *Service) GetHost(ctx context.Context, id string) (fleet.Host, error) {
	return s.Store.GetHost(ctx, id)
}

// ListHosts lists hosts under a filter.
func (s *Service) ListHosts(ctx context.Context, f fleet.HostFilter) ([]fleet.Host, error) {
	return s.Store.ListHosts(ctx, f)
}

// UpdateHost patches a host's mutable fields.
func (s *Service) UpdateHost(ctx context.Context, id string, patch map[string]any) (fleet.Host, error) {
	return s.Store.UpdateHost(ctx, id, patch)
}

// DeleteHost removes a host.
func (s *Service) DeleteHost(ctx context.Context, id string) error {
	return s.Store.DeleteHost(ctx, id)
}

// Heartbeat upserts last_heartbeat=now, status=online for the host
// identified by number (spec.md §4.J).
func (s *Service) Heartbeat(ctx context.Context, number string) error {
	if number == "" {
		return fmt.Errorf("heartbeat: host number required")
	}
	return s.Store.Heartbeat(ctx, number)
}

// HostSummaries returns the per-host device aggregate rows.
func (s *Service) HostSummaries(ctx context.Context) ([]fleet.HostSummary, error) {
	return s.Store.HostSummaries(ctx)
}
