package group

import "errors"

var (
	// ErrAlreadyAssigned means the identity already holds a slot somewhere in the roster.
	ErrAlreadyAssigned = errors.New("identity already holds a role")
	// ErrNotFound means the identity or group is not tracked.
	ErrNotFound = errors.New("not found")
	// ErrUnknownRole means the role has no declared capacity.
	ErrUnknownRole = errors.New("unknown role")
	// ErrBackupFull means the role's backup queue reached its bound.
	ErrBackupFull = errors.New("backup queue full")
	// ErrInvalidIdentity rejects the empty identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrUnauthorized means the acknowledging identity holds no primary slot.
	ErrUnauthorized = errors.New("not a primary occupant")
	// ErrNotReady means the group has not reached completion.
	ErrNotReady = errors.New("group not complete")
	// ErrClosed means the group reached its terminal state.
	ErrClosed = errors.New("group closed")
	// ErrDuplicateGroup means a group is already registered under the message id.
	ErrDuplicateGroup = errors.New("group already registered")
	// ErrRegistryClosed means the registry was drained.
	ErrRegistryClosed = errors.New("registry closed")
	// ErrLaneStopped means the group's serialization lane no longer accepts work.
	ErrLaneStopped = errors.New("group lane stopped")
)
