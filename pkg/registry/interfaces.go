// Package registry owns the canonical device rows. All mutation goes
// through the Store's transactional contract; other components never
// write device fields directly.
package registry

import (
	"context"

	"github.com/soundops/micwatch/pkg/models"
)

// Store is the canonical registry contract. Find methods return
// (nil, nil) when no row matches; FindByIP returns all holders of an IP
// because IP reuse is expected, not an error.
type Store interface {
	// Create inserts a new device row and returns its deviceRef. It
	// re-validates the uniqueness invariants (serial, MAC, source-scoped
	// API id) atomically with the insert and fails with
	// ErrIdentityCollision on violation. Callers are expected to have
	// already gone through identity resolution; this is a defensive
	// check, not the resolution path.
	Create(ctx context.Context, device *models.Device) (string, error)

	Get(ctx context.Context, deviceRef string) (*models.Device, error)

	FindBySerial(ctx context.Context, serial string) (*models.Device, error)
	FindByMAC(ctx context.Context, mac string) (*models.Device, error)
	FindByIP(ctx context.Context, ip string) ([]*models.Device, error)
	FindByAPIDeviceID(ctx context.Context, sourceID, apiDeviceID string) (*models.Device, error)

	// ListBySource returns every device last bound to the given source,
	// for the post-batch staleness sweep.
	ListBySource(ctx context.Context, sourceID string) ([]*models.Device, error)

	// Update runs mutate under a transactional read-modify-write so no
	// two concurrent updates to the same deviceRef interleave. The
	// mutator receives a private copy; returning an error aborts the
	// update without writing. Identity-field uniqueness is re-validated
	// inside the same critical section.
	Update(ctx context.Context, deviceRef string, mutate func(*models.Device) error) (*models.Device, error)

	// AppendMovement and AppendConflict feed the append-only review
	// queues consumed by the external approval workflow.
	AppendMovement(ctx context.Context, record *models.MovementRecord) error
	AppendConflict(ctx context.Context, entry *models.ConflictEntry) error

	// Read/write surface for the external approval workflow. The core
	// only appends; reviewers resolve.
	UnacknowledgedMovements(ctx context.Context) ([]*models.MovementRecord, error)
	PendingConflicts(ctx context.Context) ([]*models.ConflictEntry, error)
	AcknowledgeMovement(ctx context.Context, id, reviewer string) error
	ResolveConflict(ctx context.Context, id string, status models.ConflictStatus, reviewer string) error
}
