package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalString(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"90s"`), &d))
	assert.Equal(t, 90*time.Second, time.Duration(d))
}

func TestDurationUnmarshalNanoseconds(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`30000000000`), &d))
	assert.Equal(t, 30*time.Second, time.Duration(d))
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration

	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDurationMarshal(t *testing.T) {
	out, err := json.Marshal(Duration(5 * time.Minute))
	require.NoError(t, err)
	assert.JSONEq(t, `"5m0s"`, string(out))
}

func TestSourceConfigRoundtrip(t *testing.T) {
	raw := []byte(`{
		"type": "shure",
		"endpoint": "https://shure.example.com",
		"credentials": {"api_token": "secret"},
		"poll_interval": "45s"
	}`)

	var cfg SourceConfig
	require.NoError(t, json.Unmarshal(raw, &cfg))

	assert.Equal(t, "shure", cfg.Type)
	assert.Equal(t, "https://shure.example.com", cfg.Endpoint)
	assert.Equal(t, "secret", cfg.Credentials["api_token"])
	assert.Equal(t, 45*time.Second, time.Duration(cfg.PollInterval))
}

func TestDeviceStatusValid(t *testing.T) {
	for _, s := range []DeviceStatus{
		StatusDiscovered, StatusProvisioning, StatusOnline,
		StatusDegraded, StatusOffline, StatusMaintenance, StatusRetired,
	} {
		assert.Truef(t, s.Valid(), "%s", s)
	}

	assert.False(t, DeviceStatus("sideways").Valid())
	assert.False(t, DeviceStatus("").Valid())
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(StatusOnline))
	assert.True(t, IsActive(StatusDegraded))
	assert.True(t, IsActive(StatusProvisioning))
	assert.False(t, IsActive(StatusDiscovered))
	assert.False(t, IsActive(StatusOffline))
	assert.False(t, IsActive(StatusMaintenance))
	assert.False(t, IsActive(StatusRetired))
}

func TestDeviceCloneIsDeep(t *testing.T) {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	device := &Device{
		DeviceRef:     "dev-1",
		IP:            "10.0.0.10",
		LastSeenAt:    &seen,
		NetworkConfig: NetworkConfig{"gateway": "10.0.0.1"},
	}

	clone := device.Clone()
	clone.NetworkConfig["gateway"] = "10.9.9.9"
	*clone.LastSeenAt = clone.LastSeenAt.Add(time.Hour)

	assert.Equal(t, "10.0.0.1", device.NetworkConfig["gateway"])
	assert.True(t, device.LastSeenAt.Equal(seen))
}
