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

// ConflictKind classifies why an observation could not be auto-resolved.
type ConflictKind string

const (
	ConflictDuplicateAPIID       ConflictKind = "duplicateApiId"
	ConflictIPConflict           ConflictKind = "ipConflict"
	ConflictCrossSourceCollision ConflictKind = "crossSourceCollision"
)

// ConflictStatus is the review state of a queued conflict. Terminal
// states are reached only through an external reviewer action; the core
// never auto-transitions them.
type ConflictStatus string

const (
	ConflictPending   ConflictStatus = "pending"
	ConflictApproved  ConflictStatus = "approved"
	ConflictRejected  ConflictStatus = "rejected"
	ConflictImported  ConflictStatus = "imported"
	ConflictDuplicate ConflictStatus = "duplicate"
)

// ConflictEntry is one item in the discovery/approval queue: a snapshot
// of the observation that collided, plus review bookkeeping.
type ConflictEntry struct {
	ID          string      `json:"id" db:"id"`
	Observation Observation `json:"observation" db:"observation"`

	// MatchedDeviceRef is set when a partial or ambiguous match exists.
	MatchedDeviceRef string `json:"matched_device_ref,omitempty" db:"matched_device_ref"`

	Kind   ConflictKind   `json:"conflict_kind" db:"conflict_kind"`
	Status ConflictStatus `json:"status" db:"status"`

	DiscoveredAt time.Time  `json:"discovered_at" db:"discovered_at"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy   string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
}
