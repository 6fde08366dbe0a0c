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

package models

import (
	"time"
)

// Observation is one reported snapshot of a physical device from one
// source, for one poll cycle. Source adapters produce these; the sync
// service feeds them through identity resolution.
type Observation struct {
	SourceID    string `json:"source_id"`
	APIDeviceID string `json:"api_device_id"`
	IP          string `json:"ip"`

	SerialNumber string `json:"serial_number,omitempty"`
	MACAddress   string `json:"mac_address,omitempty"`

	Model           string        `json:"model,omitempty"`
	FirmwareVersion string        `json:"firmware_version,omitempty"`
	NetworkConfig   NetworkConfig `json:"network_config,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}
