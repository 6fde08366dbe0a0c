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

// Package sync coordinates the poll cycles: it pulls observation batches
// from source adapters, feeds each observation through identity
// resolution, branches into create/update/log-movement/queue-conflict,
// drives lifecycle transitions, and emits one event per changed device.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundops/micwatch/pkg/identity"
	"github.com/soundops/micwatch/pkg/lifecycle"
	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
	"github.com/soundops/micwatch/pkg/registry"
)

var (
	errNilObservation = errors.New("observation is nil")
	errUnknownResult  = errors.New("unknown classification result")
)

// Service runs one polling worker per configured source. Observations
// within a batch are processed sequentially by that source's worker;
// cross-device ordering is only guaranteed per deviceRef, through the
// registry's transactional Update.
type Service struct {
	config   Config
	store    registry.Store
	resolver *identity.Resolver
	life     *lifecycle.Manager
	adapters map[string]SourceAdapter
	sink     EventSink
	clock    Clock
	log      logger.Logger

	cancel  context.CancelFunc
	workers errgroup.Group
}

// New wires a Service from explicit dependencies. factories is the
// static registration table mapping source type to adapter constructor;
// sources with an unknown type are logged and skipped.
func New(
	config *Config,
	store registry.Store,
	sink EventSink,
	factories map[string]AdapterFactory,
	log logger.Logger,
	clock Clock,
) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = realClock{}
	}

	s := &Service{
		config:   *config,
		store:    store,
		resolver: identity.NewResolver(store, log),
		life:     lifecycle.NewManager(store, log, lifecycle.WithClock(clock)),
		adapters: make(map[string]SourceAdapter),
		sink:     sink,
		clock:    clock,
		log:      log,
	}

	for sourceID, src := range config.Sources {
		factory, ok := factories[src.Type]
		if !ok {
			log.Warn().
				Str("source_id", sourceID).
				Str("type", src.Type).
				Msg("Unknown source type, skipping")

			continue
		}

		s.adapters[sourceID] = factory(src, log)
	}

	return s, nil
}

// Start launches one polling worker per source and returns immediately.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for sourceID := range s.adapters {
		s.workers.Go(func() error {
			s.runSource(ctx, sourceID)
			return nil
		})
	}

	s.log.Info().
		Int("sources", len(s.adapters)).
		Msg("Sync service started")

	return nil
}

// Stop cancels all workers and waits for them, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		_ = s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runSource(ctx context.Context, sourceID string) {
	interval := time.Duration(s.config.Sources[sourceID].PollInterval)
	ticker := s.clock.Ticker(interval)

	defer ticker.Stop()

	s.syncSource(ctx, sourceID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.syncSource(ctx, sourceID)
		}
	}
}

// cycleState is the per-cycle scratch: which devices the batch touched
// and which movements were already recorded, so re-applying the same
// observation within a cycle stays idempotent.
type cycleState struct {
	seen  map[string]struct{}
	moved map[string]struct{}
}

func newCycleState() *cycleState {
	return &cycleState{
		seen:  make(map[string]struct{}),
		moved: make(map[string]struct{}),
	}
}

// syncSource runs one poll cycle for one source. A fetch failure skips
// the whole cycle for that source with no registry writes; it is retried
// on the next tick with no backoff state carried here.
func (s *Service) syncSource(ctx context.Context, sourceID string) {
	adapter := s.adapters[sourceID]

	batch, err := adapter.FetchBatch(ctx, sourceID)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("source_id", sourceID).
			Msg("Source fetch failed, skipping cycle")

		return
	}

	cycle := newCycleState()

	for _, obs := range batch {
		if ctx.Err() != nil {
			return
		}

		if err := s.processObservation(ctx, sourceID, obs, cycle); err != nil {
			// One bad observation must not abort the rest of the batch.
			s.log.Error().
				Err(err).
				Str("source_id", sourceID).
				Msg("Failed to process observation")
		}
	}

	if ctx.Err() != nil {
		return
	}

	s.sweepUnseen(ctx, sourceID, cycle)

	s.log.Debug().
		Str("source_id", sourceID).
		Int("observations", len(batch)).
		Msg("Sync cycle complete")
}

func (s *Service) processObservation(ctx context.Context, sourceID string, obs *models.Observation, cycle *cycleState) error {
	if obs == nil {
		return errNilObservation
	}

	if obs.SourceID == "" {
		obs.SourceID = sourceID
	}

	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = s.clock.Now()
	}

	cls, err := s.resolver.Resolve(ctx, obs)
	if err != nil {
		return fmt.Errorf("resolve observation: %w", err)
	}

	switch cls.Result {
	case identity.New:
		return s.createDevice(ctx, obs, cycle)
	case identity.Duplicate:
		return s.applySighting(ctx, obs, cls, cycle)
	case identity.Moved:
		return s.applyMovement(ctx, obs, cls, cycle)
	case identity.Conflict:
		return s.queueConflict(ctx, obs, cls)
	default:
		return fmt.Errorf("%w: %q", errUnknownResult, cls.Result)
	}
}

// createDevice handles the New branch: insert the row, then bring it
// into service through the state machine (discovered -> provisioning ->
// online). An identity collision at write time means our classification
// raced another writer; it becomes a review-queue entry instead of a
// crash.
func (s *Service) createDevice(ctx context.Context, obs *models.Observation, cycle *cycleState) error {
	observedAt := obs.ObservedAt

	device := &models.Device{
		SerialNumber:    obs.SerialNumber,
		MACAddress:      identity.NormalizeMAC(obs.MACAddress),
		IP:              obs.IP,
		APIDeviceID:     obs.APIDeviceID,
		SourceID:        obs.SourceID,
		Status:          models.StatusDiscovered,
		LastSeenAt:      &observedAt,
		Model:           obs.Model,
		FirmwareVersion: obs.FirmwareVersion,
		NetworkConfig:   obs.NetworkConfig,
		FirstSeen:       observedAt,
	}

	ref, err := s.store.Create(ctx, device)
	if errors.Is(err, registry.ErrIdentityCollision) {
		s.log.Warn().
			Err(err).
			Str("source_id", obs.SourceID).
			Str("api_device_id", obs.APIDeviceID).
			Msg("Create raced an identity collision, queuing for review")

		return s.queueConflict(ctx, obs, identity.Classification{
			Result: identity.Conflict,
			Kind:   models.ConflictCrossSourceCollision,
		})
	}

	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}

	cycle.seen[ref] = struct{}{}

	final, err := s.promote(ctx, ref, models.StatusDiscovered)
	if err != nil {
		return err
	}

	s.emitChange(ctx, &models.DeviceChangeEvent{
		DeviceRef:     ref,
		SourceID:      obs.SourceID,
		OldStatus:     models.StatusDiscovered,
		NewStatus:     final,
		ChangedFields: []string{"created"},
		Timestamp:     s.clock.Now(),
	})

	return nil
}

// applySighting handles the Duplicate branch: descriptive fields only,
// then the staleness recheck and the discovered/provisioning
// auto-promotion.
func (s *Service) applySighting(ctx context.Context, obs *models.Observation, cls identity.Classification, cycle *cycleState) error {
	var oldStatus models.DeviceStatus

	_, err := s.updateWithRetry(ctx, cls.DeviceRef, func(device *models.Device) error {
		oldStatus = device.Status
		applyDescriptiveFields(device, obs)

		return nil
	})
	if err != nil {
		return s.handleUpdateError(ctx, obs, cls, err)
	}

	cycle.seen[cls.DeviceRef] = struct{}{}

	finalStatus, err := s.postSightingLifecycle(ctx, cls.DeviceRef)
	if err != nil {
		return err
	}

	if finalStatus != oldStatus {
		s.emitChange(ctx, &models.DeviceChangeEvent{
			DeviceRef:     cls.DeviceRef,
			SourceID:      obs.SourceID,
			OldStatus:     oldStatus,
			NewStatus:     finalStatus,
			ChangedFields: []string{"status"},
			Timestamp:     s.clock.Now(),
		})
	}

	return nil
}

// applyMovement handles the Moved branch: append exactly one movement
// record per (device, oldIp, newIp) per cycle, rebind the IP, then the
// same lifecycle handling as a duplicate sighting.
func (s *Service) applyMovement(ctx context.Context, obs *models.Observation, cls identity.Classification, cycle *cycleState) error {
	// Append before the rebind: once the IP is rewritten the next
	// sighting resolves as a plain duplicate, so a lost append here
	// would erase the relocation from the log for good. A failed
	// append leaves the row untouched and the next cycle retries the
	// whole movement.
	movementKey := cls.DeviceRef + "|" + cls.OldIP + "|" + cls.NewIP
	if _, dup := cycle.moved[movementKey]; !dup {
		record := &models.MovementRecord{
			DeviceRef:  cls.DeviceRef,
			OldIP:      cls.OldIP,
			NewIP:      cls.NewIP,
			DetectedAt: obs.ObservedAt,
			DetectedBy: obs.SourceID,
			Reason:     fmt.Sprintf("ip changed, matched by %s", cls.MatchedBy),
		}

		if err := s.store.AppendMovement(ctx, record); err != nil {
			return fmt.Errorf("append movement for %s: %w", cls.DeviceRef, err)
		}

		cycle.moved[movementKey] = struct{}{}
	}

	var oldStatus models.DeviceStatus

	_, err := s.updateWithRetry(ctx, cls.DeviceRef, func(device *models.Device) error {
		oldStatus = device.Status
		device.IP = cls.NewIP
		applyDescriptiveFields(device, obs)

		return nil
	})
	if err != nil {
		return s.handleUpdateError(ctx, obs, cls, err)
	}

	cycle.seen[cls.DeviceRef] = struct{}{}

	finalStatus, err := s.postSightingLifecycle(ctx, cls.DeviceRef)
	if err != nil {
		return err
	}

	changed := []string{"ip"}
	if finalStatus != oldStatus {
		changed = append(changed, "status")
	}

	s.emitChange(ctx, &models.DeviceChangeEvent{
		DeviceRef:     cls.DeviceRef,
		SourceID:      obs.SourceID,
		OldStatus:     oldStatus,
		NewStatus:     finalStatus,
		ChangedFields: changed,
		Timestamp:     s.clock.Now(),
	})

	return nil
}

// queueConflict handles the Conflict branch: snapshot the observation
// into the approval queue and notify the reviewer workflow. The registry
// is never touched.
func (s *Service) queueConflict(ctx context.Context, obs *models.Observation, cls identity.Classification) error {
	kind := cls.Kind
	if kind == "" {
		kind = models.ConflictCrossSourceCollision
	}

	entry := &models.ConflictEntry{
		Observation:      *obs,
		MatchedDeviceRef: cls.DeviceRef,
		Kind:             kind,
		Status:           models.ConflictPending,
		DiscoveredAt:     s.clock.Now(),
	}

	if err := s.store.AppendConflict(ctx, entry); err != nil {
		return fmt.Errorf("append conflict entry: %w", err)
	}

	if err := s.sink.PublishReviewRequested(ctx, entry); err != nil {
		s.log.Error().
			Err(err).
			Str("conflict_id", entry.ID).
			Msg("Failed to publish review-requested event")
	}

	return nil
}

// postSightingLifecycle runs the per-sighting lifecycle steps: the
// staleness recheck, then auto-promotion to online when the device is
// still in discovered or provisioning. Returns the device's final
// status.
func (s *Service) postSightingLifecycle(ctx context.Context, deviceRef string) (models.DeviceStatus, error) {
	device, _, err := s.life.CheckHealth(ctx, deviceRef, time.Duration(s.config.StaleAfter))
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}

	switch device.Status {
	case models.StatusDiscovered:
		return s.promote(ctx, deviceRef, models.StatusDiscovered)
	case models.StatusProvisioning:
		return s.promote(ctx, deviceRef, models.StatusProvisioning)
	default:
		return device.Status, nil
	}
}

// promote walks a device from its pre-service state to online through
// the transition table (discovered -> provisioning -> online). A
// rejected transition is logged and leaves the status where it was.
func (s *Service) promote(ctx context.Context, deviceRef string, from models.DeviceStatus) (models.DeviceStatus, error) {
	current := from

	steps := []models.DeviceStatus{models.StatusProvisioning, models.StatusOnline}
	if from == models.StatusProvisioning {
		steps = steps[1:]
	}

	for _, target := range steps {
		device, err := s.life.Transition(ctx, deviceRef, target, map[string]string{
			"reason": "observed by source poll",
		})
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			s.log.Warn().
				Err(err).
				Str("device_ref", deviceRef).
				Msg("Skipping rejected lifecycle transition")

			return current, nil
		}

		if err != nil {
			return current, fmt.Errorf("promote device: %w", err)
		}

		current = device.Status
	}

	return current, nil
}

// sweepUnseen runs the post-batch staleness pass over devices of this
// source that the batch did not report.
func (s *Service) sweepUnseen(ctx context.Context, sourceID string, cycle *cycleState) {
	devices, err := s.store.ListBySource(ctx, sourceID)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("source_id", sourceID).
			Msg("Failed to list devices for staleness sweep")

		return
	}

	for _, device := range devices {
		if _, ok := cycle.seen[device.DeviceRef]; ok {
			continue
		}

		updated, transitioned, err := s.life.CheckHealth(ctx, device.DeviceRef, time.Duration(s.config.StaleAfter))
		if err != nil {
			s.log.Error().
				Err(err).
				Str("device_ref", device.DeviceRef).
				Msg("Staleness check failed")

			continue
		}

		if transitioned {
			s.emitChange(ctx, &models.DeviceChangeEvent{
				DeviceRef:     device.DeviceRef,
				SourceID:      sourceID,
				OldStatus:     device.Status,
				NewStatus:     updated.Status,
				ChangedFields: []string{"status"},
				Timestamp:     s.clock.Now(),
			})
		}
	}
}

// updateWithRetry retries a registry update exactly once on an
// optimistic-concurrency conflict before giving up on the observation
// for this cycle.
func (s *Service) updateWithRetry(ctx context.Context, deviceRef string, mutate func(*models.Device) error) (*models.Device, error) {
	device, err := s.store.Update(ctx, deviceRef, mutate)
	if errors.Is(err, registry.ErrUpdateConflict) {
		return s.store.Update(ctx, deviceRef, mutate)
	}

	return device, err
}

// handleUpdateError converts a write-time identity collision into a
// review-queue entry; everything else propagates for skip-and-log.
func (s *Service) handleUpdateError(ctx context.Context, obs *models.Observation, cls identity.Classification, err error) error {
	if errors.Is(err, registry.ErrIdentityCollision) {
		s.log.Warn().
			Err(err).
			Str("device_ref", cls.DeviceRef).
			Msg("Update raced an identity collision, queuing for review")

		return s.queueConflict(ctx, obs, identity.Classification{
			Result:    identity.Conflict,
			DeviceRef: cls.DeviceRef,
			Kind:      models.ConflictCrossSourceCollision,
		})
	}

	return fmt.Errorf("update device %s: %w", cls.DeviceRef, err)
}

func (s *Service) emitChange(ctx context.Context, event *models.DeviceChangeEvent) {
	if err := s.sink.PublishDeviceChange(ctx, event); err != nil {
		s.log.Error().
			Err(err).
			Str("device_ref", event.DeviceRef).
			Msg("Failed to publish device change event")
	}
}

// applyDescriptiveFields copies the observation's descriptive fields and
// refreshes lastSeenAt. Identity fields are never written here.
func applyDescriptiveFields(device *models.Device, obs *models.Observation) {
	observedAt := obs.ObservedAt
	device.LastSeenAt = &observedAt

	if obs.Model != "" {
		device.Model = obs.Model
	}

	if obs.FirmwareVersion != "" {
		device.FirmwareVersion = obs.FirmwareVersion
	}

	if obs.NetworkConfig != nil {
		device.NetworkConfig = obs.NetworkConfig
	}
}
