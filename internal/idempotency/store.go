package idempotency

import (
	"context"
	"errors"
	"time"
)

// Entry status values. A key is created pending the moment a request
// starts side effects, moves to success once the workflow commits, and is
// removed entirely when the workflow fails so the key becomes retryable.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
)

// ErrDuplicate is returned by SetPending when the key already has an
// entry: another request holding the same key is still in flight.
var ErrDuplicate = errors.New("idempotency key already in flight")

// Entry records the lifecycle of one de-duplication key. Response holds
// the exact payload to replay verbatim on later lookups.
type Entry struct {
	Status    string
	Response  []byte
	CreatedAt time.Time
}

// Store records the lifecycle of client-supplied de-duplication keys.
// Implementations must be safe for concurrent use; SetPending must behave
// as an atomic insert-if-absent so two requests racing on one key cannot
// both pass.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)

	// SetPending inserts a pending entry, or returns ErrDuplicate if any
	// entry already exists for key.
	SetPending(ctx context.Context, key string) error

	// SetSuccess transitions the entry to success and stores the response
	// payload for verbatim replay.
	SetSuccess(ctx context.Context, key string, response []byte) error

	// Clear removes the entry entirely. Used only when the guarded
	// workflow fails, so the same key can be retried.
	Clear(ctx context.Context, key string) error
}

// MakeKey scopes a client token to one operation and one user, so the
// same token cannot collide across users or endpoints.
func MakeKey(operation, userID, token string) string {
	return operation + "::" + userID + "::" + token
}
