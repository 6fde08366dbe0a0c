package sennheiser

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

func TestFetchBatch(t *testing.T) {
	payload := `[
		{
			"ssc_id": "ssc-77",
			"serial": "SN-200",
			"mac": "aa:bb:cc:dd:ee:02",
			"ipv4": "10.0.1.20",
			"product": "EW-DX EM 2",
			"firmware": "3.0.4",
			"netmask": "255.255.255.0",
			"gateway": "10.0.1.1"
		},
		{"ssc_id": "", "ipv4": "10.0.1.21"},
		{"ssc_id": "ssc-79", "ipv4": ""}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ssc/devices", r.URL.Path)
		assert.Equal(t, "cockpit-key", r.Header.Get("X-Api-Key"))

		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{
		Type:        "sennheiser",
		Endpoint:    srv.URL,
		Credentials: map[string]string{"api_key": "cockpit-key"},
	}, logger.NewTestLogger())

	batch, err := adapter.FetchBatch(context.Background(), "sennheiser-west")
	require.NoError(t, err)
	require.Len(t, batch, 1)

	obs := batch[0]
	assert.Equal(t, "sennheiser-west", obs.SourceID)
	assert.Equal(t, "ssc-77", obs.APIDeviceID)
	assert.Equal(t, "10.0.1.20", obs.IP)
	assert.Equal(t, "SN-200", obs.SerialNumber)
	assert.Equal(t, "EW-DX EM 2", obs.Model)
	assert.Equal(t, "10.0.1.1", obs.NetworkConfig["gateway"])
}

func TestFetchBatchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := New(&models.SourceConfig{Type: "sennheiser", Endpoint: srv.URL}, logger.NewTestLogger())

	_, err := adapter.FetchBatch(context.Background(), "sennheiser-west")
	require.ErrorIs(t, err, errUnexpectedStatusCode)
}
