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

package db

import (
	"context"
	"fmt"
)

// schemaStatements create the registry tables. Partial unique indexes
// enforce the serial/MAC invariants only when the value is present.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_ref       UUID PRIMARY KEY,
		serial_number    TEXT NOT NULL DEFAULT '',
		mac_address      TEXT NOT NULL DEFAULT '',
		ip               TEXT NOT NULL,
		api_device_id    TEXT NOT NULL,
		source_id        TEXT NOT NULL,
		status           TEXT NOT NULL,
		last_seen_at     TIMESTAMPTZ,
		last_online_at   TIMESTAMPTZ,
		last_offline_at  TIMESTAMPTZ,
		total_online_ns  BIGINT NOT NULL DEFAULT 0,
		model            TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		network_config   JSONB,
		first_seen       TIMESTAMPTZ NOT NULL,
		version          BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS devices_serial_uniq
		ON devices (serial_number) WHERE serial_number <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS devices_mac_uniq
		ON devices (mac_address) WHERE mac_address <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS devices_source_api_uniq
		ON devices (source_id, api_device_id)`,
	`CREATE INDEX IF NOT EXISTS devices_ip_idx ON devices (ip)`,
	`CREATE TABLE IF NOT EXISTS movement_records (
		id               UUID PRIMARY KEY,
		device_ref       UUID NOT NULL REFERENCES devices(device_ref),
		old_ip           TEXT NOT NULL,
		new_ip           TEXT NOT NULL,
		old_location_ref TEXT NOT NULL DEFAULT '',
		new_location_ref TEXT NOT NULL DEFAULT '',
		detected_at      TIMESTAMPTZ NOT NULL,
		detected_by      TEXT NOT NULL,
		reason           TEXT NOT NULL DEFAULT '',
		acknowledged     BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_at  TIMESTAMPTZ,
		acknowledged_by  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS movement_records_unacked_idx
		ON movement_records (device_ref) WHERE NOT acknowledged`,
	`CREATE TABLE IF NOT EXISTS conflict_entries (
		id                 UUID PRIMARY KEY,
		observation        JSONB NOT NULL,
		matched_device_ref TEXT NOT NULL DEFAULT '',
		conflict_kind      TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending',
		discovered_at      TIMESTAMPTZ NOT NULL,
		reviewed_at        TIMESTAMPTZ,
		reviewed_by        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS conflict_entries_pending_idx
		ON conflict_entries (discovered_at) WHERE status = 'pending'`,
}

// EnsureSchema creates the registry tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToInit, err)
		}
	}

	return nil
}
