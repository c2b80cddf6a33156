package fleetsvc

import (
	"context"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// CreateDevice validates and persists a new device.
func (s *Service) CreateDevice(ctx context.Context, d fleet.Device) (fleet.Device, error) {
	if d.Status == "" {
		d.Status = fleet.DeviceOffline
	}
	if err := ValidateDevice(d); err != nil {
		return fleet.Device{}, err
	}
	return s.Store.CreateDevice(ctx, d)
}

// GetDevice fetches a device by id.
func (s *Service) GetDevice(ctx context.Context, id string) (fleet.Device, error) {
	return s.Store.GetDevice(ctx, id)
}

// GetDeviceByCode fetches a device by its composite code (e.g. HOST01-001).
func (s *Service) GetDeviceByCode(ctx context.Context, code string) (fleet.Device, error) {
	return s.Store.GetDeviceByCode(ctx, code)
}

// ListDevices lists devices under a filter.
func (s *Service) ListDevices(ctx context.Context, f fleet.DeviceFilter) ([]fleet.Device, error) {
	return s.Store.ListDevices(ctx, f)
}

// UpdateDevice patches a device's mutable fields.
func (s *Service) UpdateDevice(ctx context.Context, id string, patch map[string]any) (fleet.Device, error) {
	return s.Store.UpdateDevice(ctx, id, patch)
}

// DeleteDevice removes a device.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	return s.Store.DeleteDevice(ctx, id)
}

// AssignDevice assigns deviceID to hostID, allocating the next free
// local ordinal (spec.md §4.J — the invariant is reproduced under an
// explicit row lock inside fleet.PostgresStore.AssignDevice).
func (s *Service) AssignDevice(ctx context.Context, deviceID, hostID string) (fleet.Device, error) {
	return s.Store.AssignDevice(ctx, deviceID, hostID)
}

// UnassignDevice clears both host id and ordinal.
func (s *Service) UnassignDevice(ctx context.Context, deviceID string) (fleet.Device, error) {
	return s.Store.UnassignDevice(ctx, deviceID)
}

// OnlineDevices lists every online device across the fleet.
func (s *Service) OnlineDevices(ctx context.Context) ([]fleet.Device, error) {
	return s.Store.OnlineDevices(ctx)
}
