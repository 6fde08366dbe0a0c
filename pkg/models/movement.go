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

// MovementRecord is the append-only record of a detected device
// relocation. Written by the sync service when identity resolution
// classifies an observation as moved. Immutable except for the
// acknowledgment fields, which an external reviewer sets exactly once.
type MovementRecord struct {
	ID        string `json:"id" db:"id"`
	DeviceRef string `json:"device_ref" db:"device_ref"`

	OldIP          string `json:"old_ip" db:"old_ip"`
	NewIP          string `json:"new_ip" db:"new_ip"`
	OldLocationRef string `json:"old_location_ref,omitempty" db:"old_location_ref"`
	NewLocationRef string `json:"new_location_ref,omitempty" db:"new_location_ref"`

	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
	DetectedBy string    `json:"detected_by" db:"detected_by"`
	Reason     string    `json:"reason" db:"reason"`

	Acknowledged   bool       `json:"acknowledged" db:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
}
