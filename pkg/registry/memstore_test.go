package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/models"
)

func newTestStore() *MemStore {
	return NewMemStore(logger.NewTestLogger())
}

func testDevice(apiDeviceID, ip string) *models.Device {
	return &models.Device{
		IP:          ip,
		APIDeviceID: apiDeviceID,
		SourceID:    "shure-east",
	}
}

func TestCreateAssignsDefaults(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	device, err := store.Get(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, models.StatusDiscovered, device.Status)
	assert.False(t, device.FirstSeen.IsZero())
	assert.Equal(t, int64(1), device.Version)
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.Create(ctx, nil)
	require.Error(t, err)

	_, err = store.Create(ctx, &models.Device{APIDeviceID: "rx-1", SourceID: "s"})
	require.Error(t, err, "missing ip")

	_, err = store.Create(ctx, &models.Device{IP: "10.0.0.10", APIDeviceID: "rx-1"})
	require.Error(t, err, "missing source")

	_, err = store.Create(ctx, &models.Device{IP: "10.0.0.10", SourceID: "s"})
	require.Error(t, err, "missing api device id")
}

func TestCreateRejectsDuplicateIdentity(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first := testDevice("rx-1", "10.0.0.10")
	first.SerialNumber = "SN-100"
	first.MACAddress = "AA:BB:CC:DD:EE:01"

	_, err := store.Create(ctx, first)
	require.NoError(t, err)

	dupSerial := testDevice("rx-2", "10.0.0.11")
	dupSerial.SerialNumber = "SN-100"

	_, err = store.Create(ctx, dupSerial)
	assert.ErrorIs(t, err, ErrIdentityCollision)

	dupMAC := testDevice("rx-3", "10.0.0.12")
	dupMAC.MACAddress = "AA:BB:CC:DD:EE:01"

	_, err = store.Create(ctx, dupMAC)
	assert.ErrorIs(t, err, ErrIdentityCollision)

	_, err = store.Create(ctx, testDevice("rx-1", "10.0.0.13"))
	assert.ErrorIs(t, err, ErrIdentityCollision, "same source and api device id")

	// Same api id under a different source is allowed.
	other := testDevice("rx-1", "10.0.0.14")
	other.SourceID = "sennheiser-west"

	_, err = store.Create(ctx, other)
	assert.NoError(t, err)
}

func TestGetUnknownRef(t *testing.T) {
	store := newTestStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestFindReturnsNilOnNoMatch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	device, err := store.FindBySerial(ctx, "SN-999")
	require.NoError(t, err)
	assert.Nil(t, device)

	device, err = store.FindByMAC(ctx, "AA:BB:CC:DD:EE:99")
	require.NoError(t, err)
	assert.Nil(t, device)

	devices, err := store.FindByIP(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.Empty(t, devices)

	device, err = store.FindByAPIDeviceID(ctx, "shure-east", "rx-99")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestFindByIPReturnsAllHolders(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	_, err = store.Create(ctx, testDevice("rx-2", "10.0.0.10"))
	require.NoError(t, err)

	devices, err := store.FindByIP(ctx, "10.0.0.10")
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestUpdateIncrementsVersion(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	updated, err := store.Update(ctx, ref, func(device *models.Device) error {
		device.Model = "ULXD4"
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "ULXD4", updated.Model)
	assert.Equal(t, int64(2), updated.Version)
}

func TestUpdateMutatorErrorAborts(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	wantErr := assert.AnError

	_, err = store.Update(ctx, ref, func(device *models.Device) error {
		device.Model = "should not persist"
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	device, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, device.Model)
	assert.Equal(t, int64(1), device.Version)
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	_, err = store.Update(ctx, ref, func(device *models.Device) error {
		device.Status = "broken"
		return nil
	})
	require.Error(t, err)
}

func TestUpdateRevalidatesUniqueness(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first := testDevice("rx-1", "10.0.0.10")
	first.SerialNumber = "SN-100"

	_, err := store.Create(ctx, first)
	require.NoError(t, err)

	ref, err := store.Create(ctx, testDevice("rx-2", "10.0.0.11"))
	require.NoError(t, err)

	_, err = store.Update(ctx, ref, func(device *models.Device) error {
		device.SerialNumber = "SN-100"
		return nil
	})
	assert.ErrorIs(t, err, ErrIdentityCollision)
}

func TestUpdatePreservesRefAndVersionAgainstMutator(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	updated, err := store.Update(ctx, ref, func(device *models.Device) error {
		device.DeviceRef = "hijacked"
		device.Version = 999
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, ref, updated.DeviceRef)
	assert.Equal(t, int64(2), updated.Version)
}

func TestMovementLifecycle(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	record := &models.MovementRecord{
		DeviceRef: "dev-1",
		OldIP:     "10.0.0.10",
		NewIP:     "10.0.0.20",
	}

	require.NoError(t, store.AppendMovement(ctx, record))
	require.NotEmpty(t, record.ID)
	require.False(t, record.DetectedAt.IsZero())

	pending, err := store.UnacknowledgedMovements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.AcknowledgeMovement(ctx, record.ID, "ops@venue"))

	pending, err = store.UnacknowledgedMovements(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = store.AcknowledgeMovement(ctx, record.ID, "ops@venue")
	assert.ErrorIs(t, err, ErrMovementAcknowledged)

	err = store.AcknowledgeMovement(ctx, "missing", "ops@venue")
	assert.ErrorIs(t, err, ErrMovementNotFound)
}

func TestConflictLifecycle(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	entry := &models.ConflictEntry{
		Observation: models.Observation{
			SourceID:    "shure-east",
			APIDeviceID: "rx-1",
			IP:          "10.0.0.10",
		},
		Kind: models.ConflictDuplicateAPIID,
	}

	require.NoError(t, store.AppendConflict(ctx, entry))
	require.NotEmpty(t, entry.ID)
	assert.Equal(t, models.ConflictPending, entry.Status)

	pending, err := store.PendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.ResolveConflict(ctx, entry.ID, models.ConflictApproved, "ops@venue"))

	pending, err = store.PendingConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = store.ResolveConflict(ctx, entry.ID, models.ConflictRejected, "ops@venue")
	assert.ErrorIs(t, err, ErrConflictResolved)

	err = store.ResolveConflict(ctx, "missing", models.ConflictApproved, "ops@venue")
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	ref, err := store.Create(ctx, testDevice("rx-1", "10.0.0.10"))
	require.NoError(t, err)

	device, err := store.Get(ctx, ref)
	require.NoError(t, err)

	device.IP = "clobbered"

	reread, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", reread.IP)
}
