/*
 * Copyright 2025 SoundOps.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package shure polls the Shure System API for wireless receivers and
// their linked transmitters.
package shure

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

const defaultTimeout = 30 * time.Second

var errUnexpectedStatusCode = errors.New("unexpected status code from Shure API")

// Adapter talks to one Shure System API endpoint.
type Adapter struct {
	config     *models.SourceConfig
	httpClient *http.Client
	log        logger.Logger
}

func New(config *models.SourceConfig, log logger.Logger) *Adapter {
	transport := http.DefaultTransport

	if config.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // lab controllers ship self-signed certs
		}
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		log: log,
	}
}

// deviceRecord is the subset of the Shure System API device payload the
// sync service cares about.
type deviceRecord struct {
	ID              string `json:"id"`
	SerialNumber    string `json:"serial_number"`
	MACAddress      string `json:"mac_address"`
	IPAddress       string `json:"ip_address"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	Network         struct {
		Subnet    string `json:"subnet"`
		Gateway   string `json:"gateway"`
		Interface string `json:"interface"`
	} `json:"network"`
}

type devicesResponse struct {
	Devices []deviceRecord `json:"devices"`
	Total   int            `json:"total"`
}

// FetchBatch pulls the current device inventory from the controller.
func (a *Adapter) FetchBatch(ctx context.Context, sourceID string) ([]*models.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/devices", a.config.Endpoint), http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if token := a.config.Credentials["api_token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shure devices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode,
			resp.StatusCode, string(bodyBytes))
	}

	var payload devicesResponse

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode shure devices: %w", err)
	}

	now := time.Now()
	observations := make([]*models.Observation, 0, len(payload.Devices))

	for _, record := range payload.Devices {
		if record.ID == "" || record.IPAddress == "" {
			a.log.Debug().
				Str("source_id", sourceID).
				Str("device_id", record.ID).
				Msg("Skipping Shure device without id or IP")

			continue
		}

		observations = append(observations, &models.Observation{
			SourceID:        sourceID,
			APIDeviceID:     record.ID,
			IP:              record.IPAddress,
			SerialNumber:    record.SerialNumber,
			MACAddress:      record.MACAddress,
			Model:           record.Model,
			FirmwareVersion: record.FirmwareVersion,
			NetworkConfig: models.NetworkConfig{
				"subnet":    record.Network.Subnet,
				"gateway":   record.Network.Gateway,
				"interface": record.Network.Interface,
			},
			ObservedAt: now,
		})
	}

	return observations, nil
}
