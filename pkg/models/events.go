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

// DeviceChangeEvent is emitted once per device whose status or identity
// changed during a sync cycle. The broadcast layer consumes these;
// delivery and ordering to clients is its responsibility.
type DeviceChangeEvent struct {
	DeviceRef     string       `json:"device_ref"`
	SourceID      string       `json:"source_id"`
	OldStatus     DeviceStatus `json:"old_status"`
	NewStatus     DeviceStatus `json:"new_status"`
	ChangedFields []string     `json:"changed_fields,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ReviewRequestedEvent notifies the approval workflow that a new
// conflict entry is waiting for a reviewer.
type ReviewRequestedEvent struct {
	ConflictID   string       `json:"conflict_id"`
	SourceID     string       `json:"source_id"`
	Kind         ConflictKind `json:"conflict_kind"`
	DiscoveredAt time.Time    `json:"discovered_at"`
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}
