package shure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

const devicesPayload = `{
	"devices": [
		{
			"id": "rx-1",
			"serial_number": "SN-100",
			"mac_address": "aa:bb:cc:dd:ee:01",
			"ip_address": "10.0.0.10",
			"model": "ULXD4",
			"firmware_version": "2.7.1",
			"network": {"subnet": "255.255.255.0", "gateway": "10.0.0.1", "interface": "eth0"}
		},
		{
			"id": "",
			"ip_address": "10.0.0.11"
		},
		{
			"id": "rx-3",
			"ip_address": ""
		}
	],
	"total": 3
}`

func TestFetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/devices", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(devicesPayload))
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{
		Type:        "shure",
		Endpoint:    srv.URL,
		Credentials: map[string]string{"api_token": "secret"},
	}, logger.NewTestLogger())

	batch, err := adapter.FetchBatch(context.Background(), "shure-east")
	require.NoError(t, err)

	// Records without id or IP are dropped.
	require.Len(t, batch, 1)

	obs := batch[0]
	assert.Equal(t, "shure-east", obs.SourceID)
	assert.Equal(t, "rx-1", obs.APIDeviceID)
	assert.Equal(t, "10.0.0.10", obs.IP)
	assert.Equal(t, "SN-100", obs.SerialNumber)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", obs.MACAddress)
	assert.Equal(t, "ULXD4", obs.Model)
	assert.Equal(t, "2.7.1", obs.FirmwareVersion)
	assert.Equal(t, "10.0.0.1", obs.NetworkConfig["gateway"])
	assert.False(t, obs.ObservedAt.IsZero())
}

func TestFetchBatchNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"devices": [], "total": 0}`))
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{Type: "shure", Endpoint: srv.URL}, logger.NewTestLogger())

	batch, err := adapter.FetchBatch(context.Background(), "shure-east")
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFetchBatchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{Type: "shure", Endpoint: srv.URL}, logger.NewTestLogger())

	_, err := adapter.FetchBatch(context.Background(), "shure-east")
	require.ErrorIs(t, err, errUnexpectedStatusCode)
}

func TestFetchBatchBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"devices": [`))
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{Type: "shure", Endpoint: srv.URL}, logger.NewTestLogger())

	_, err := adapter.FetchBatch(context.Background(), "shure-east")
	require.Error(t, err)
}
