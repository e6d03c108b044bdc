// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
)

// Store is a mutex-guarded map with the same compare-and-set semantics as
// the durable stores.
type Store struct {
	mu      sync.Mutex
	records map[string]ledger.DripRecord

	// Err, when set, is returned from every call wrapped in ErrUnavailable.
	Err error
	// BeforePut runs before each Put is applied, outside the lock.
	BeforePut func(rec ledger.DripRecord, expected int64)

	Gets int
	Puts int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: map[string]ledger.DripRecord{}}
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, k ledger.Key) (*ledger.DripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	if s.Err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrUnavailable, s.Err)
	}
	rec, ok := s.records[k.String()]
	if !ok {
		return nil, nil
	}
	rec.Transactions = append([]ledger.TransactionRecord(nil), rec.Transactions...)
	return &rec, nil
}

// Put implements ledger.Store.
func (s *Store) Put(ctx context.Context, rec ledger.DripRecord, expected int64) error {
	if s.BeforePut != nil {
		s.BeforePut(rec, expected)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts++
	if s.Err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, s.Err)
	}
	key := rec.Key().String()
	current, exists := s.records[key]
	if expected == 0 && exists {
		return ledger.ErrVersionConflict
	}
	if expected != 0 && (!exists || current.Version != expected) {
		return ledger.ErrVersionConflict
	}
	rec.DripKey = key
	rec.Version = expected + 1
	rec.Transactions = append([]ledger.TransactionRecord(nil), rec.Transactions...)
	s.records[key] = rec
	return nil
}

// Record returns the stored record for k.
func (s *Store) Record(k ledger.Key) (ledger.DripRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[k.String()]
	return rec, ok
}

// Seed stores rec unconditionally, keeping its version.
func (s *Store) Seed(rec ledger.DripRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.DripKey = rec.Key().String()
	s.records[rec.DripKey] = rec
}

// SetErr sets or clears the injected failure.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}
