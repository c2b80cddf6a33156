package fleetsvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

func TestValidateDeviceRequiresTransport(t *testing.T) {
	d := fleet.Device{PhysicalPort: 1, Connection: fleet.ConnUSB, BatteryLevel: 50}
	err := ValidateDevice(d)
	require.Error(t, err)
}

func TestValidateDeviceRejectsBothSerialAndAddress(t *testing.T) {
	d := fleet.Device{
		Serial: "ABC123", Address: "10.0.0.5", PhysicalPort: 1,
		Connection: fleet.ConnBoth, BatteryLevel: 50,
	}
	err := ValidateDevice(d)
	require.Error(t, err)
}

func TestValidateDeviceAcceptsSerialOnly(t *testing.T) {
	d := fleet.Device{
		Serial: "ABC123", PhysicalPort: 1,
		Connection: fleet.ConnUSB, BatteryLevel: 50,
	}
	require.NoError(t, ValidateDevice(d))
}

func TestValidateHostRequiresNumberAndAddress(t *testing.T) {
	err := ValidateHost(fleet.Host{MaxDevices: 8})
	require.Error(t, err)
}

func TestValidateHostAccepts(t *testing.T) {
	err := ValidateHost(fleet.Host{Number: "HOST01", Address: "10.0.0.1", MaxDevices: 8})
	require.NoError(t, err)
}
