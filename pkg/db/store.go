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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
	"github.com/soundops/micwatch/pkg/registry"
)

const deviceColumns = `device_ref, serial_number, mac_address, ip, api_device_id, source_id,
	status, last_seen_at, last_online_at, last_offline_at, total_online_ns,
	model, firmware_version, network_config, first_seen, version`

// Store implements registry.Store on Postgres. Update takes a row lock
// (SELECT ... FOR UPDATE) so concurrent mutations of one device
// serialize, and keeps the version check as a second line of defense.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var _ registry.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{
		pool: pool,
		log:  log,
	}
}

func (s *Store) Create(ctx context.Context, device *models.Device) (string, error) {
	if device == nil {
		return "", fmt.Errorf("%w: nil device", ErrFailedToInsert)
	}

	row := device.Clone()
	if row.DeviceRef == "" {
		row.DeviceRef = uuid.New().String()
	}

	if row.Status == "" {
		row.Status = models.StatusDiscovered
	}

	if !row.Status.Valid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrFailedToInsert, row.Status)
	}

	if row.FirstSeen.IsZero() {
		row.FirstSeen = time.Now()
	}

	networkConfig, err := marshalNetworkConfig(row.NetworkConfig)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)`,
		row.DeviceRef, row.SerialNumber, row.MACAddress, row.IP, row.APIDeviceID, row.SourceID,
		string(row.Status), row.LastSeenAt, row.LastOnlineAt, row.LastOfflineAt, int64(row.TotalOnline),
		row.Model, row.FirmwareVersion, networkConfig, row.FirstSeen,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %w", registry.ErrIdentityCollision, err)
		}

		return "", fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	return row.DeviceRef, nil
}

func (s *Store) Get(ctx context.Context, deviceRef string) (*models.Device, error) {
	device, err := s.queryOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_ref = $1`, deviceRef)
	if err != nil {
		return nil, err
	}

	if device == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, deviceRef)
	}

	return device, nil
}

func (s *Store) FindBySerial(ctx context.Context, serial string) (*models.Device, error) {
	if serial == "" {
		return nil, nil
	}

	return s.queryOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE serial_number = $1`, serial)
}

func (s *Store) FindByMAC(ctx context.Context, mac string) (*models.Device, error) {
	if mac == "" {
		return nil, nil
	}

	return s.queryOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac_address = $1`, mac)
}

func (s *Store) FindByIP(ctx context.Context, ip string) ([]*models.Device, error) {
	if ip == "" {
		return nil, nil
	}

	return s.queryMany(ctx, `SELECT `+deviceColumns+` FROM devices WHERE ip = $1 ORDER BY first_seen`, ip)
}

func (s *Store) FindByAPIDeviceID(ctx context.Context, sourceID, apiDeviceID string) (*models.Device, error) {
	if sourceID == "" || apiDeviceID == "" {
		return nil, nil
	}

	return s.queryOne(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE source_id = $1 AND api_device_id = $2`,
		sourceID, apiDeviceID)
}

func (s *Store) ListBySource(ctx context.Context, sourceID string) ([]*models.Device, error) {
	return s.queryMany(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE source_id = $1 ORDER BY first_seen`, sourceID)
}

func (s *Store) Update(ctx context.Context, deviceRef string, mutate func(*models.Device) error) (*models.Device, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_ref = $1 FOR UPDATE`, deviceRef)

	current, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", registry.ErrDeviceNotFound, deviceRef)
	}

	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	next.DeviceRef = current.DeviceRef

	if !next.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrFailedToInsert, next.Status)
	}

	networkConfig, err := marshalNetworkConfig(next.NetworkConfig)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE devices SET
			serial_number = $2, mac_address = $3, ip = $4, api_device_id = $5, source_id = $6,
			status = $7, last_seen_at = $8, last_online_at = $9, last_offline_at = $10,
			total_online_ns = $11, model = $12, firmware_version = $13, network_config = $14,
			version = version + 1
		WHERE device_ref = $1 AND version = $15`,
		next.DeviceRef, next.SerialNumber, next.MACAddress, next.IP, next.APIDeviceID, next.SourceID,
		string(next.Status), next.LastSeenAt, next.LastOnlineAt, next.LastOfflineAt,
		int64(next.TotalOnline), next.Model, next.FirmwareVersion, networkConfig,
		current.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", registry.ErrIdentityCollision, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: device %s version %d", registry.ErrUpdateConflict, deviceRef, current.Version)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	next.Version = current.Version + 1

	return next, nil
}

func (s *Store) AppendMovement(ctx context.Context, record *models.MovementRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil movement record", ErrFailedToInsert)
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.DetectedAt.IsZero() {
		record.DetectedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO movement_records
			(id, device_ref, old_ip, new_ip, old_location_ref, new_location_ref,
			 detected_at, detected_by, reason, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)`,
		record.ID, record.DeviceRef, record.OldIP, record.NewIP,
		record.OldLocationRef, record.NewLocationRef,
		record.DetectedAt, record.DetectedBy, record.Reason,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (s *Store) AppendConflict(ctx context.Context, entry *models.ConflictEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil conflict entry", ErrFailedToInsert)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.Status == "" {
		entry.Status = models.ConflictPending
	}

	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now()
	}

	observation, err := json.Marshal(entry.Observation)
	if err != nil {
		return fmt.Errorf("%w: marshal observation: %w", ErrFailedToInsert, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conflict_entries
			(id, observation, matched_device_ref, conflict_kind, status, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, observation, entry.MatchedDeviceRef, string(entry.Kind),
		string(entry.Status), entry.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (s *Store) UnacknowledgedMovements(ctx context.Context) ([]*models.MovementRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, device_ref, old_ip, new_ip, old_location_ref, new_location_ref,
		       detected_at, detected_by, reason, acknowledged, acknowledged_at, acknowledged_by
		FROM movement_records WHERE NOT acknowledged ORDER BY detected_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	defer rows.Close()

	var out []*models.MovementRecord

	for rows.Next() {
		record := &models.MovementRecord{}

		if err := rows.Scan(
			&record.ID, &record.DeviceRef, &record.OldIP, &record.NewIP,
			&record.OldLocationRef, &record.NewLocationRef,
			&record.DetectedAt, &record.DetectedBy, &record.Reason,
			&record.Acknowledged, &record.AcknowledgedAt, &record.AcknowledgedBy,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
		}

		out = append(out, record)
	}

	return out, rows.Err()
}

func (s *Store) PendingConflicts(ctx context.Context) ([]*models.ConflictEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, observation, matched_device_ref, conflict_kind, status,
		       discovered_at, reviewed_at, reviewed_by
		FROM conflict_entries WHERE status = 'pending' ORDER BY discovered_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	defer rows.Close()

	var out []*models.ConflictEntry

	for rows.Next() {
		entry := &models.ConflictEntry{}

		var observation []byte
		var kind, status string

		if err := rows.Scan(
			&entry.ID, &observation, &entry.MatchedDeviceRef, &kind, &status,
			&entry.DiscoveredAt, &entry.ReviewedAt, &entry.ReviewedBy,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
		}

		if err := json.Unmarshal(observation, &entry.Observation); err != nil {
			return nil, fmt.Errorf("%w: unmarshal observation: %w", ErrFailedToScan, err)
		}

		entry.Kind = models.ConflictKind(kind)
		entry.Status = models.ConflictStatus(status)

		out = append(out, entry)
	}

	return out, rows.Err()
}

func (s *Store) AcknowledgeMovement(ctx context.Context, id, reviewer string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE movement_records
		SET acknowledged = TRUE, acknowledged_at = NOW(), acknowledged_by = $2
		WHERE id = $1 AND NOT acknowledged`, id, reviewer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM movement_records WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		if exists {
			return fmt.Errorf("%w: %s", registry.ErrMovementAcknowledged, id)
		}

		return fmt.Errorf("%w: %s", registry.ErrMovementNotFound, id)
	}

	return nil
}

func (s *Store) ResolveConflict(ctx context.Context, id string, status models.ConflictStatus, reviewer string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conflict_entries
		SET status = $2, reviewed_at = NOW(), reviewed_by = $3
		WHERE id = $1 AND status = 'pending'`, id, string(status), reviewer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM conflict_entries WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		if exists {
			return fmt.Errorf("%w: %s", registry.ErrConflictResolved, id)
		}

		return fmt.Errorf("%w: %s", registry.ErrConflictNotFound, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	device := &models.Device{}

	var status string
	var totalOnline int64
	var networkConfig []byte

	if err := row.Scan(
		&device.DeviceRef, &device.SerialNumber, &device.MACAddress, &device.IP,
		&device.APIDeviceID, &device.SourceID, &status,
		&device.LastSeenAt, &device.LastOnlineAt, &device.LastOfflineAt,
		&totalOnline, &device.Model, &device.FirmwareVersion, &networkConfig,
		&device.FirstSeen, &device.Version,
	); err != nil {
		return nil, err
	}

	device.Status = models.DeviceStatus(status)
	device.TotalOnline = time.Duration(totalOnline)

	if len(networkConfig) > 0 {
		if err := json.Unmarshal(networkConfig, &device.NetworkConfig); err != nil {
			return nil, fmt.Errorf("%w: unmarshal network config: %w", ErrFailedToScan, err)
		}
	}

	return device, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*models.Device, error) {
	row := s.pool.QueryRow(ctx, query, args...)

	device, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
	}

	return device, nil
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]*models.Device, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	defer rows.Close()

	var out []*models.Device

	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
		}

		out = append(out, device)
	}

	return out, rows.Err()
}

func marshalNetworkConfig(config models.NetworkConfig) ([]byte, error) {
	if config == nil {
		return nil, nil
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal network config: %w", ErrFailedToInsert, err)
	}

	return payload, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
