package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

// MemStore is an in-memory Store. It backs tests and small single-node
// deployments; the Postgres store in pkg/db is the production
// implementation. A single mutex serializes all mutation, which gives
// the per-device ordering guarantee trivially.
type MemStore struct {
	mu        sync.RWMutex
	devices   map[string]*models.Device
	movements []*models.MovementRecord
	conflicts []*models.ConflictEntry
	log       logger.Logger
}

var _ Store = (*MemStore)(nil)

func NewMemStore(log logger.Logger) *MemStore {
	return &MemStore{
		devices: make(map[string]*models.Device),
		log:     log,
	}
}

func (s *MemStore) Create(_ context.Context, device *models.Device) (string, error) {
	if device == nil {
		return "", errNilDevice
	}

	if err := validateDevice(device); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueness(device, ""); err != nil {
		return "", err
	}

	row := device.Clone()
	if row.DeviceRef == "" {
		row.DeviceRef = uuid.New().String()
	}

	if row.Status == "" {
		row.Status = models.StatusDiscovered
	}

	if row.FirstSeen.IsZero() {
		row.FirstSeen = time.Now()
	}

	row.Version = 1
	s.devices[row.DeviceRef] = row

	s.log.Debug().
		Str("device_ref", row.DeviceRef).
		Str("source_id", row.SourceID).
		Str("ip", row.IP).
		Msg("Created device")

	return row.DeviceRef, nil
}

func (s *MemStore) Get(_ context.Context, deviceRef string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[deviceRef]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceRef)
	}

	return device.Clone(), nil
}

func (s *MemStore) FindBySerial(_ context.Context, serial string) (*models.Device, error) {
	if serial == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.SerialNumber == serial {
			return device.Clone(), nil
		}
	}

	return nil, nil
}

func (s *MemStore) FindByMAC(_ context.Context, mac string) (*models.Device, error) {
	if mac == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.MACAddress == mac {
			return device.Clone(), nil
		}
	}

	return nil, nil
}

func (s *MemStore) FindByIP(_ context.Context, ip string) ([]*models.Device, error) {
	if ip == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Device

	for _, device := range s.devices {
		if device.IP == ip {
			out = append(out, device.Clone())
		}
	}

	return out, nil
}

func (s *MemStore) FindByAPIDeviceID(_ context.Context, sourceID, apiDeviceID string) (*models.Device, error) {
	if sourceID == "" || apiDeviceID == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.SourceID == sourceID && device.APIDeviceID == apiDeviceID {
			return device.Clone(), nil
		}
	}

	return nil, nil
}

func (s *MemStore) ListBySource(_ context.Context, sourceID string) ([]*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Device

	for _, device := range s.devices {
		if device.SourceID == sourceID {
			out = append(out, device.Clone())
		}
	}

	return out, nil
}

func (s *MemStore) Update(_ context.Context, deviceRef string, mutate func(*models.Device) error) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.devices[deviceRef]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceRef)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	// The mutator must not rebind the row or tamper with versioning.
	next.DeviceRef = current.DeviceRef
	next.Version = current.Version

	if !next.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", errInvalidStatus, next.Status)
	}

	if err := s.checkUniqueness(next, deviceRef); err != nil {
		return nil, err
	}

	next.Version++
	s.devices[deviceRef] = next

	return next.Clone(), nil
}

func (s *MemStore) AppendMovement(_ context.Context, record *models.MovementRecord) error {
	if record == nil {
		return errNilMovement
	}

	if record.DeviceRef == "" {
		return errMissingDeviceRef
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.DetectedAt.IsZero() {
		record.DetectedAt = time.Now()
	}

	row := *record
	s.movements = append(s.movements, &row)

	return nil
}

func (s *MemStore) AppendConflict(_ context.Context, entry *models.ConflictEntry) error {
	if entry == nil {
		return errNilConflict
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.Status == "" {
		entry.Status = models.ConflictPending
	}

	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now()
	}

	row := *entry
	s.conflicts = append(s.conflicts, &row)

	return nil
}

func (s *MemStore) UnacknowledgedMovements(_ context.Context) ([]*models.MovementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MovementRecord

	for _, record := range s.movements {
		if !record.Acknowledged {
			copied := *record
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (s *MemStore) PendingConflicts(_ context.Context) ([]*models.ConflictEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ConflictEntry

	for _, entry := range s.conflicts {
		if entry.Status == models.ConflictPending {
			copied := *entry
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (s *MemStore) AcknowledgeMovement(_ context.Context, id, reviewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.movements {
		if record.ID != id {
			continue
		}

		if record.Acknowledged {
			return fmt.Errorf("%w: %s", ErrMovementAcknowledged, id)
		}

		now := time.Now()
		record.Acknowledged = true
		record.AcknowledgedAt = &now
		record.AcknowledgedBy = reviewer

		return nil
	}

	return fmt.Errorf("%w: %s", ErrMovementNotFound, id)
}

func (s *MemStore) ResolveConflict(_ context.Context, id string, status models.ConflictStatus, reviewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.conflicts {
		if entry.ID != id {
			continue
		}

		if entry.Status != models.ConflictPending {
			return fmt.Errorf("%w: %s", ErrConflictResolved, id)
		}

		now := time.Now()
		entry.Status = status
		entry.ReviewedAt = &now
		entry.ReviewedBy = reviewer

		return nil
	}

	return fmt.Errorf("%w: %s", ErrConflictNotFound, id)
}

// checkUniqueness enforces the registry invariants against every row
// except the one being updated. Caller holds the write lock.
func (s *MemStore) checkUniqueness(candidate *models.Device, skipRef string) error {
	for ref, existing := range s.devices {
		if ref == skipRef {
			continue
		}

		if candidate.SerialNumber != "" && existing.SerialNumber == candidate.SerialNumber {
			return fmt.Errorf("%w: serial %s already bound to %s",
				ErrIdentityCollision, candidate.SerialNumber, ref)
		}

		if candidate.MACAddress != "" && existing.MACAddress == candidate.MACAddress {
			return fmt.Errorf("%w: mac %s already bound to %s",
				ErrIdentityCollision, candidate.MACAddress, ref)
		}

		if existing.SourceID == candidate.SourceID && existing.APIDeviceID == candidate.APIDeviceID {
			return fmt.Errorf("%w: api device id %s/%s already bound to %s",
				ErrIdentityCollision, candidate.SourceID, candidate.APIDeviceID, ref)
		}
	}

	return nil
}

func validateDevice(device *models.Device) error {
	if device.IP == "" {
		return errMissingIP
	}

	if device.SourceID == "" {
		return errMissingSource
	}

	if device.APIDeviceID == "" {
		return errMissingAPIID
	}

	if device.Status != "" && !device.Status.Valid() {
		return fmt.Errorf("%w: %q", errInvalidStatus, device.Status)
	}

	return nil
}
