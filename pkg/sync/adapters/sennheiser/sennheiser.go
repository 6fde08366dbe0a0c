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

// Package sennheiser polls a Sennheiser Control Cockpit instance for
// registered wireless devices.
package sennheiser

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

var errUnexpectedStatusCode = errors.New("unexpected status code from Control Cockpit")

type Adapter struct {
	config     *models.SourceConfig
	httpClient *http.Client
	log        logger.Logger
}

func New(config *models.SourceConfig, log logger.Logger) *Adapter {
	transport := http.DefaultTransport

	if config.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // on-prem installs ship self-signed certs
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

// deviceEntry mirrors the Control Cockpit device list payload.
type deviceEntry struct {
	SSCID    string `json:"ssc_id"`
	Serial   string `json:"serial"`
	MAC      string `json:"mac"`
	IPv4     string `json:"ipv4"`
	Product  string `json:"product"`
	Firmware string `json:"firmware"`
	Netmask  string `json:"netmask"`
	Gateway  string `json:"gateway"`
}

// FetchBatch pulls the registered device list.
func (a *Adapter) FetchBatch(ctx context.Context, sourceID string) ([]*models.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/ssc/devices", a.config.Endpoint), http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if key := a.config.Credentials["api_key"]; key != "" {
		req.Header.Set("X-Api-Key", key)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("control cockpit devices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode,
			resp.StatusCode, string(bodyBytes))
	}

	var entries []deviceEntry

	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode control cockpit devices: %w", err)
	}

	now := time.Now()
	observations := make([]*models.Observation, 0, len(entries))

	for _, entry := range entries {
		if entry.SSCID == "" || entry.IPv4 == "" {
			a.log.Debug().
				Str("source_id", sourceID).
				Str("ssc_id", entry.SSCID).
				Msg("Skipping device without ssc id or IP")

			continue
		}

		observations = append(observations, &models.Observation{
			SourceID:        sourceID,
			APIDeviceID:     entry.SSCID,
			IP:              entry.IPv4,
			SerialNumber:    entry.Serial,
			MACAddress:      entry.MAC,
			Model:           entry.Product,
			FirmwareVersion: entry.Firmware,
			NetworkConfig: models.NetworkConfig{
				"subnet":  entry.Netmask,
				"gateway": entry.Gateway,
			},
			ObservedAt: now,
		})
	}

	return observations, nil
}
