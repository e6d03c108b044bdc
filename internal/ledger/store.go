// Package ledger is the durable drip ledger: one record per recipient per
// network, updated only by version compare-and-set.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrVersionConflict means the record changed since it was read.
	ErrVersionConflict = errors.New("ledger version conflict")
	// ErrUnavailable means the store could not answer. Callers fail closed.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Store is a strongly consistent record store.
type Store interface {
	// Get returns the record for k, or nil when none exists.
	Get(ctx context.Context, k Key) (*DripRecord, error)
	// Put writes rec as version expected+1 if the stored version is still
	// expected. Zero means the record must not exist yet.
	Put(ctx context.Context, rec DripRecord, expected int64) error
}
