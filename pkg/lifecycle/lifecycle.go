// Package lifecycle drives the device status state machine. Every
// transition goes through the registry's transactional Update so
// concurrent sync cycles cannot interleave on one device.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
	"github.com/soundops/micwatch/pkg/registry"
)

// ErrInvalidTransition rejects a target status not reachable from the
// device's current status. The attempt is refused, never coerced.
var ErrInvalidTransition = errors.New("invalid status transition")

// errHealthy aborts the CheckHealth update when the device turns out not
// to be stale once re-read under the row lock.
var errHealthy = errors.New("device is not stale")

// transitions is the allowed-target table. Retired is terminal.
var transitions = map[models.DeviceStatus][]models.DeviceStatus{
	models.StatusDiscovered:   {models.StatusProvisioning, models.StatusOffline, models.StatusRetired},
	models.StatusProvisioning: {models.StatusOnline, models.StatusOffline, models.StatusDiscovered},
	models.StatusOnline:       {models.StatusDegraded, models.StatusOffline, models.StatusMaintenance},
	models.StatusDegraded:     {models.StatusOnline, models.StatusOffline, models.StatusMaintenance},
	models.StatusOffline:      {models.StatusOnline, models.StatusDegraded, models.StatusMaintenance, models.StatusRetired},
	models.StatusMaintenance:  {models.StatusOnline, models.StatusOffline, models.StatusRetired},
	models.StatusRetired:      {},
}

// CanTransition reports whether the table permits from -> to.
func CanTransition(from, to models.DeviceStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// AllowedTargets returns the transition targets for a status.
func AllowedTargets(from models.DeviceStatus) []models.DeviceStatus {
	targets := transitions[from]
	out := make([]models.DeviceStatus, len(targets))
	copy(out, targets)

	return out
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager mutates device status through the registry store.
type Manager struct {
	store registry.Store
	clock Clock
	log   logger.Logger
}

type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewManager(store registry.Store, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		clock: realClock{},
		log:   log,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Transition moves a device to target, validating against the table and
// maintaining the online/offline bookkeeping. metadata is recorded in
// the transition log line only.
func (m *Manager) Transition(ctx context.Context, deviceRef string, target models.DeviceStatus, metadata map[string]string) (*models.Device, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	var from models.DeviceStatus

	updated, err := m.store.Update(ctx, deviceRef, func(device *models.Device) error {
		from = device.Status

		if !CanTransition(device.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, device.Status, target)
		}

		m.applyStatus(device, target)

		return nil
	})
	if err != nil {
		return nil, err
	}

	event := m.log.Info().
		Str("device_ref", deviceRef).
		Str("from", string(from)).
		Str("to", string(target))

	for k, v := range metadata {
		event = event.Str(k, v)
	}

	event.Msg("Device status transition")

	return updated, nil
}

// CheckHealth demotes an Online/Degraded device to Offline when it has
// not been seen within staleAfter. A nil lastSeenAt counts as stale:
// an active device that was never stamped has no evidence of life.
// This is the one self-triggered transition; it runs inside the same
// transactional path as explicit transitions and re-checks staleness
// under the row lock. Returns the device and whether a transition
// happened.
func (m *Manager) CheckHealth(ctx context.Context, deviceRef string, staleAfter time.Duration) (*models.Device, bool, error) {
	now := m.clock.Now()

	updated, err := m.store.Update(ctx, deviceRef, func(device *models.Device) error {
		if device.Status != models.StatusOnline && device.Status != models.StatusDegraded {
			return errHealthy
		}

		if device.LastSeenAt != nil && now.Sub(*device.LastSeenAt) <= staleAfter {
			return errHealthy
		}

		m.applyStatus(device, models.StatusOffline)

		return nil
	})

	if errors.Is(err, errHealthy) {
		device, getErr := m.store.Get(ctx, deviceRef)
		return device, false, getErr
	}

	if err != nil {
		return nil, false, err
	}

	m.log.Info().
		Str("device_ref", deviceRef).
		Dur("stale_after", staleAfter).
		Msg("Device marked offline after staleness check")

	return updated, true, nil
}

// applyStatus writes the new status and keeps lastOnlineAt/lastOfflineAt
// and the accumulated online duration consistent.
func (m *Manager) applyStatus(device *models.Device, target models.DeviceStatus) {
	now := m.clock.Now()

	if device.Status == models.StatusOnline && target != models.StatusOnline {
		if device.LastOnlineAt != nil {
			device.TotalOnline += now.Sub(*device.LastOnlineAt)
		}
	}

	if target == models.StatusOnline && device.Status != models.StatusOnline {
		entered := now
		device.LastOnlineAt = &entered
	}

	if target == models.StatusOffline {
		entered := now
		device.LastOfflineAt = &entered
	}

	device.Status = target
}
