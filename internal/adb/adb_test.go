package adb

import "testing"

import "github.com/stretchr/testify/require"

func TestParseBattery(t *testing.T) {
	out := "Current Battery Service state:\n  AC powered: false\n  level: 87\n  status: 2\n"
	level, charging := parseBattery(out)
	require.Equal(t, 87, level)
	require.True(t, charging)
}

func TestParseBatteryNotCharging(t *testing.T) {
	out := "  level: 42\n  status: 3\n"
	level, charging := parseBattery(out)
	require.Equal(t, 42, level)
	require.False(t, charging)
}

func TestParseWifiIP(t *testing.T) {
	out := "2: wlan0    inet 192.168.1.42/24 brd 192.168.1.255 scope global wlan0\n"
	ip, ok := parseWifiIP(out)
	require.True(t, ok)
	require.Equal(t, "192.168.1.42", ip)
}

func TestParseWifiIPAbsent(t *testing.T) {
	_, ok := parseWifiIP("no inet line here\n")
	require.False(t, ok)
}
