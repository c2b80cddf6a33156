// Package fleetsvc implements component J: operations over hosts,
// devices, and tasks with filtered pagination, plus the request-level
// validation the API layer needs before a Store call.
package fleetsvc

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

var validate = validator.New()

// ValidateHost runs struct-tag validation on h (spec.md §3 Host
// invariants not expressible as tags are checked separately).
func ValidateHost(h fleet.Host) error {
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("invalid host: %w", err)
	}
	return nil
}

// ValidateDevice runs struct-tag validation and the serial-XOR-address
// transport invariant from spec.md §3.
func ValidateDevice(d fleet.Device) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid device: %w", err)
	}
	if !d.HasTransport() {
		return fmt.Errorf("invalid device: exactly one of serial or address must be set")
	}
	return nil
}
