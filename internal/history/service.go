// Package history serves the read-only view of past drips for a recipient.
package history

import (
	"context"

	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
)

// Service reads transaction history from the ledger.
type Service struct {
	store        ledger.Store
	defaultLimit int
	maxLimit     int
}

// New returns a Service. A request limit of zero or less uses defaultLimit;
// larger limits are capped at maxLimit.
func New(store ledger.Store, defaultLimit, maxLimit int) *Service {
	return &Service{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Limit resolves a requested limit against the service bounds.
func (s *Service) Limit(requested int) int {
	if requested <= 0 {
		requested = s.defaultLimit
	}
	if requested > s.maxLimit {
		requested = s.maxLimit
	}
	return requested
}

// History returns up to limit transactions for k, newest first. A recipient
// with no history gets an empty slice.
func (s *Service) History(ctx context.Context, k ledger.Key, limit int) ([]ledger.TransactionRecord, error) {
	rec, err := s.store.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []ledger.TransactionRecord{}, nil
	}
	return rec.Recent(s.Limit(limit)), nil
}
