package registry

import "errors"

var (
	// ErrDeviceNotFound means no row exists for the given deviceRef.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrIdentityCollision is the registry-level uniqueness violation
	// caught at write time: a serial, MAC, or source-scoped API id is
	// already bound to a different device.
	ErrIdentityCollision = errors.New("identity collision")

	// ErrUpdateConflict is the optimistic-concurrency failure on Update.
	ErrUpdateConflict = errors.New("registry update conflict")

	// ErrMovementNotFound and ErrConflictNotFound cover the review
	// queues.
	ErrMovementNotFound = errors.New("movement record not found")
	ErrConflictNotFound = errors.New("conflict entry not found")

	// ErrMovementAcknowledged guards the set-exactly-once acknowledgment.
	ErrMovementAcknowledged = errors.New("movement record already acknowledged")

	// ErrConflictResolved rejects a second reviewer action on a conflict
	// that already left pending.
	ErrConflictResolved = errors.New("conflict entry already resolved")

	errMissingIP        = errors.New("device must have an IP address")
	errMissingSource    = errors.New("device must have a source id")
	errMissingAPIID     = errors.New("device must have an API device id")
	errInvalidStatus    = errors.New("device status is not a defined lifecycle state")
	errNilDevice        = errors.New("device is nil")
	errNilMovement      = errors.New("movement record is nil")
	errNilConflict      = errors.New("conflict entry is nil")
	errMissingDeviceRef = errors.New("movement record must reference a device")
)
