// Package identity decides whether an incoming device observation refers
// to a device the registry already knows. It is a pure decision engine:
// it reads the registry through the Lookup capability and returns a
// classification; all mutation happens in the caller.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

var errNilObservation = errors.New("identity: observation is nil")

// Result is the outcome of resolving one observation.
type Result string

const (
	// New means no registry row matched; the caller should create one.
	New Result = "new"
	// Duplicate means the observation is a re-sighting of a known device
	// and only descriptive fields may have changed.
	Duplicate Result = "duplicate"
	// Moved means a stronger key (serial/MAC) matched but the reported IP
	// differs from the registry's.
	Moved Result = "moved"
	// Conflict means an identity collision that must go to human review;
	// the caller must not touch the registry.
	Conflict Result = "conflict"
)

// MatchKey names the identity field that produced the match.
type MatchKey string

const (
	MatchSerial MatchKey = "serial_number"
	MatchMAC    MatchKey = "mac_address"
	MatchIP     MatchKey = "ip"
	MatchAPIID  MatchKey = "api_device_id"
	MatchNone   MatchKey = ""
)

// Classification is the decision plus the evidence supporting it.
type Classification struct {
	Result    Result
	DeviceRef string
	MatchedBy MatchKey

	// OldIP/NewIP are populated for Moved.
	OldIP string
	NewIP string

	// Kind is populated for Conflict.
	Kind models.ConflictKind
}

// Lookup is the read-only registry capability the resolver needs.
// Implementations return (nil, nil) when no row matches.
type Lookup interface {
	FindBySerial(ctx context.Context, serial string) (*models.Device, error)
	FindByMAC(ctx context.Context, mac string) (*models.Device, error)
	FindByIP(ctx context.Context, ip string) ([]*models.Device, error)
	FindByAPIDeviceID(ctx context.Context, sourceID, apiDeviceID string) (*models.Device, error)
}

// Resolver matches observations against the canonical registry using a
// priority-ordered key strategy: serial number, then MAC, then IP, then
// the source-scoped API device id. Stronger, hardware-bound identifiers
// win over the weak, frequently-reassigned IP so DHCP churn never spawns
// duplicate rows.
type Resolver struct {
	lookup Lookup
	log    logger.Logger
}

func NewResolver(lookup Lookup, log logger.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		log:    log,
	}
}

// Resolve classifies one observation. It never mutates the registry.
func (r *Resolver) Resolve(ctx context.Context, obs *models.Observation) (Classification, error) {
	if obs == nil {
		return Classification{}, errNilObservation
	}

	serial := strings.TrimSpace(obs.SerialNumber)
	mac := NormalizeMAC(obs.MACAddress)

	if serial != "" {
		cls, matched, err := r.resolveBySerial(ctx, obs, serial)
		if err != nil || matched {
			return cls, err
		}
	}

	if mac != "" {
		cls, matched, err := r.resolveByMAC(ctx, obs, serial, mac)
		if err != nil || matched {
			return cls, err
		}
	}

	if obs.IP != "" {
		cls, matched, err := r.resolveByIP(ctx, obs, serial, mac)
		if err != nil || matched {
			return cls, err
		}
	}

	cls, matched, err := r.resolveByAPIID(ctx, obs, serial, mac)
	if err != nil || matched {
		return cls, err
	}

	return Classification{Result: New}, nil
}

// resolveBySerial handles priority 1: exact serial-number match.
func (r *Resolver) resolveBySerial(ctx context.Context, obs *models.Observation, serial string) (Classification, bool, error) {
	device, err := r.lookup.FindBySerial(ctx, serial)
	if err != nil {
		return Classification{}, false, err
	}

	if device == nil {
		return Classification{}, false, nil
	}

	// The same serial reported by the same source under a different API
	// device id means the vendor rebound the id to different hardware
	// (factory reset, RMA swap). Do not merge; queue for review.
	if device.SourceID == obs.SourceID && device.APIDeviceID != "" && device.APIDeviceID != obs.APIDeviceID {
		return r.conflict(obs, device, models.ConflictCrossSourceCollision, MatchSerial), true, nil
	}

	return r.matchStrong(obs, device, MatchSerial), true, nil
}

// resolveByMAC handles priority 2: MAC match when no serial matched.
func (r *Resolver) resolveByMAC(ctx context.Context, obs *models.Observation, serial, mac string) (Classification, bool, error) {
	device, err := r.lookup.FindByMAC(ctx, mac)
	if err != nil {
		return Classification{}, false, err
	}

	if device == nil {
		return Classification{}, false, nil
	}

	// The observation carries a serial the registry has never seen while
	// the matched row already owns a different one. Two serials behind
	// one MAC is not something we can merge automatically.
	if serial != "" && device.SerialNumber != "" && device.SerialNumber != serial {
		return r.conflict(obs, device, models.ConflictCrossSourceCollision, MatchMAC), true, nil
	}

	if device.SourceID == obs.SourceID && device.APIDeviceID != "" && device.APIDeviceID != obs.APIDeviceID {
		return r.conflict(obs, device, models.ConflictCrossSourceCollision, MatchMAC), true, nil
	}

	return r.matchStrong(obs, device, MatchMAC), true, nil
}

// resolveByIP handles priority 3: same IP, no stronger key matched.
func (r *Resolver) resolveByIP(ctx context.Context, obs *models.Observation, serial, mac string) (Classification, bool, error) {
	devices, err := r.lookup.FindByIP(ctx, obs.IP)
	if err != nil {
		return Classification{}, false, err
	}

	if len(devices) == 0 {
		return Classification{}, false, nil
	}

	// Prefer the row already bound to this source's API device id, then
	// any row whose stronger identity does not disagree with ours.
	var candidate *models.Device

	for _, device := range devices {
		if device.SourceID == obs.SourceID && device.APIDeviceID == obs.APIDeviceID {
			// The row already bound to this API id reports different
			// hardware on the same IP. Factory resets and swapped units
			// look exactly like this; queue it instead of merging.
			if !ipIdentitiesConsistent(device, serial, mac) {
				return r.conflict(obs, device, models.ConflictIPConflict, MatchIP), true, nil
			}

			candidate = device
			break
		}

		if candidate == nil && ipIdentitiesConsistent(device, serial, mac) {
			candidate = device
		}
	}

	if candidate != nil {
		return Classification{
			Result:    Duplicate,
			DeviceRef: candidate.DeviceRef,
			MatchedBy: MatchIP,
		}, true, nil
	}

	// Every holder of this IP carries a stronger identity that actively
	// disagrees with the observation: a genuine two-devices-one-IP case.
	return r.conflict(obs, devices[0], models.ConflictIPConflict, MatchIP), true, nil
}

// resolveByAPIID handles priority 4: the (sourceId, apiDeviceId) pair.
func (r *Resolver) resolveByAPIID(ctx context.Context, obs *models.Observation, serial, mac string) (Classification, bool, error) {
	if obs.APIDeviceID == "" {
		return Classification{}, false, nil
	}

	device, err := r.lookup.FindByAPIDeviceID(ctx, obs.SourceID, obs.APIDeviceID)
	if err != nil {
		return Classification{}, false, err
	}

	if device == nil {
		return Classification{}, false, nil
	}

	// The pair is already bound to hardware whose serial or MAC disagrees
	// with what the observation reports. Reusing an API id across
	// hardware happens after factory resets; surface it for review.
	if serial != "" && device.SerialNumber != "" && device.SerialNumber != serial {
		return r.conflict(obs, device, models.ConflictDuplicateAPIID, MatchAPIID), true, nil
	}

	if mac != "" && device.MACAddress != "" && device.MACAddress != mac {
		return r.conflict(obs, device, models.ConflictDuplicateAPIID, MatchAPIID), true, nil
	}

	return r.matchStrong(obs, device, MatchAPIID), true, nil
}

// matchStrong builds the Moved/Duplicate classification for a confirmed
// same-hardware match.
func (r *Resolver) matchStrong(obs *models.Observation, device *models.Device, key MatchKey) Classification {
	if obs.IP != "" && device.IP != obs.IP {
		return Classification{
			Result:    Moved,
			DeviceRef: device.DeviceRef,
			MatchedBy: key,
			OldIP:     device.IP,
			NewIP:     obs.IP,
		}
	}

	return Classification{
		Result:    Duplicate,
		DeviceRef: device.DeviceRef,
		MatchedBy: key,
	}
}

func (r *Resolver) conflict(obs *models.Observation, device *models.Device, kind models.ConflictKind, key MatchKey) Classification {
	cls := Classification{
		Result:    Conflict,
		MatchedBy: key,
		Kind:      kind,
	}

	if device != nil {
		cls.DeviceRef = device.DeviceRef
	}

	r.log.Debug().
		Str("source_id", obs.SourceID).
		Str("api_device_id", obs.APIDeviceID).
		Str("ip", obs.IP).
		Str("conflict_kind", string(kind)).
		Str("matched_by", string(key)).
		Msg("Observation classified as conflict")

	return cls
}

// ipIdentitiesConsistent reports whether the row's stronger identity
// fields are empty or agree with the observation's. Empty on either side
// is not a disagreement.
func ipIdentitiesConsistent(device *models.Device, serial, mac string) bool {
	if device.SerialNumber != "" && serial != "" && device.SerialNumber != serial {
		return false
	}

	if device.MACAddress != "" && mac != "" && device.MACAddress != mac {
		return false
	}

	return true
}
