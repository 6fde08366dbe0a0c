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

// DeviceStatus is the lifecycle state of a registered device.
type DeviceStatus string

const (
	StatusDiscovered   DeviceStatus = "discovered"
	StatusProvisioning DeviceStatus = "provisioning"
	StatusOnline       DeviceStatus = "online"
	StatusDegraded     DeviceStatus = "degraded"
	StatusOffline      DeviceStatus = "offline"
	StatusMaintenance  DeviceStatus = "maintenance"
	StatusRetired      DeviceStatus = "retired"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s DeviceStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusProvisioning, StatusOnline,
		StatusDegraded, StatusOffline, StatusMaintenance, StatusRetired:
		return true
	default:
		return false
	}
}

// IsActive reports whether a device in the given state is considered in
// service. Derived on read, never stored.
func IsActive(s DeviceStatus) bool {
	return s == StatusOnline || s == StatusDegraded || s == StatusProvisioning
}

// NetworkConfig carries the reported network settings of a device. The
// registry treats it as an opaque blob; keys are vendor-defined
// (subnet, gateway, interface, ...).
type NetworkConfig map[string]string

// Device is the canonical registry row for one physical piece of
// wireless-microphone hardware (receiver or transmitter).
type Device struct {
	// DeviceRef is the opaque internal id, stable for the device lifetime.
	DeviceRef string `json:"device_ref" db:"device_ref"`

	// Identity fields. SerialNumber and MACAddress are unique across the
	// whole registry when present; (SourceID, APIDeviceID) is unique as a
	// pair; IP is expected to move between devices.
	SerialNumber string `json:"serial_number,omitempty" db:"serial_number"`
	MACAddress   string `json:"mac_address,omitempty" db:"mac_address"`
	IP           string `json:"ip" db:"ip"`
	APIDeviceID  string `json:"api_device_id" db:"api_device_id"`
	SourceID     string `json:"source_id" db:"source_id"`

	// Lifecycle fields.
	Status        DeviceStatus  `json:"status" db:"status"`
	LastSeenAt    *time.Time    `json:"last_seen_at,omitempty" db:"last_seen_at"`
	LastOnlineAt  *time.Time    `json:"last_online_at,omitempty" db:"last_online_at"`
	LastOfflineAt *time.Time    `json:"last_offline_at,omitempty" db:"last_offline_at"`
	TotalOnline   time.Duration `json:"total_online" db:"total_online"`

	// Descriptive fields.
	Model           string        `json:"model,omitempty" db:"model"`
	FirmwareVersion string        `json:"firmware_version,omitempty" db:"firmware_version"`
	NetworkConfig   NetworkConfig `json:"network_config,omitempty" db:"network_config"`

	FirstSeen time.Time `json:"first_seen" db:"first_seen"`

	// Version is the optimistic-concurrency counter maintained by the
	// registry store. Incremented on every successful Update.
	Version int64 `json:"version" db:"version"`
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	out := *d

	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		out.LastSeenAt = &t
	}

	if d.LastOnlineAt != nil {
		t := *d.LastOnlineAt
		out.LastOnlineAt = &t
	}

	if d.LastOfflineAt != nil {
		t := *d.LastOfflineAt
		out.LastOfflineAt = &t
	}

	if d.NetworkConfig != nil {
		out.NetworkConfig = make(NetworkConfig, len(d.NetworkConfig))
		for k, v := range d.NetworkConfig {
			out.NetworkConfig[k] = v
		}
	}

	return &out
}
