// Package ratelimit enforces the per-recipient drip cooldown. Every decision
// is made against the durable ledger through compare-and-set, so it holds
// across process instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/filecoin-faucet/internal/config"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
)

// ErrContention is returned when compare-and-set keeps losing. It is a form
// of ledger unavailability, so callers fail closed.
var ErrContention = fmt.Errorf("%w: compare-and-set retries exhausted", ledger.ErrUnavailable)

// Denial reasons.
const (
	ReasonCooldown = "cooldown"
	ReasonPending  = "pending"
)

const defaultMaxAttempts = 5

// Lease is held by the single request allowed to dispatch for a key.
type Lease struct {
	Key        ledger.Key
	ID         string
	AcquiredAt time.Time
}

// Decision is the answer of TryAcquire.
type Decision struct {
	Allowed    bool
	Lease      Lease
	RetryAfter time.Duration
	Reason     string
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}

// OutcomeKind is how the leased dispatch ended.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota + 1
	FailedTransient
	FailedFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case FailedTransient:
		return "failed_transient"
	case FailedFatal:
		return "failed_fatal"
	default:
		return "unknown"
	}
}

// Outcome is reported back through Release.
type Outcome struct {
	Kind OutcomeKind
	Tx   ledger.TransactionRecord // set when Kind is Succeeded
	At   time.Time
}

// Options tune the limiter.
type Options struct {
	Cooldown        time.Duration
	StaleLeaseAfter time.Duration
	// Disabled skips the cooldown check. The pending lease still applies.
	Disabled bool
	// ConsumeOnTransient starts the cooldown after a transient failure.
	ConsumeOnTransient bool
	HistoryMax         int
	MaxAttempts        int
}

// OptionsFromConfig maps process configuration onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Cooldown:           cfg.Cooldown(),
		StaleLeaseAfter:    cfg.StaleLeaseAfter(),
		Disabled:           cfg.RateLimiterDisabled,
		ConsumeOnTransient: cfg.TransientFailurePolicy == config.PolicyConsumeCooldown,
		HistoryMax:         cfg.HistoryMaxRecords,
	}
}

// Limiter hands out at most one lease per key at a time.
type Limiter struct {
	store  ledger.Store
	opts   Options
	logger *slog.Logger
	newID  func() string
}

// New returns a Limiter over store.
func New(store ledger.Store, opts Options, logger *slog.Logger) *Limiter {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, opts: opts, logger: logger, newID: uuid.NewString}
}

// Cooldown returns the configured cooldown.
func (l *Limiter) Cooldown() time.Duration { return l.opts.Cooldown }

// TryAcquire decides whether key may drip at now and, if so, takes its lease.
func (l *Limiter) TryAcquire(ctx context.Context, key ledger.Key, now time.Time) (Decision, error) {
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		rec, err := l.store.Get(ctx, key)
		if err != nil {
			return Decision{}, err
		}

		next := ledger.NewRecord(key)
		var expected int64
		if rec != nil {
			next = *rec
			expected = rec.Version
			if denied, ok := l.deny(*rec, now); ok {
				return denied, nil
			}
		}

		lease := Lease{Key: key, ID: l.newID(), AcquiredAt: now}
		next.Pending = true
		next.LeaseID = lease.ID
		next.LeaseAcquiredAt = now
		next.CooldownSeconds = int64(l.opts.Cooldown / time.Second)

		err = l.store.Put(ctx, next, expected)
		if err == nil {
			return Decision{Allowed: true, Lease: lease}, nil
		}
		if !errors.Is(err, ledger.ErrVersionConflict) {
			return Decision{}, err
		}
		l.logger.Debug("ledger conflict on acquire", "key", key.String(), "attempt", attempt+1)
	}
	return Decision{}, ErrContention
}

func (l *Limiter) deny(rec ledger.DripRecord, now time.Time) (Decision, bool) {
	if rec.Pending {
		age := now.Sub(rec.LeaseAcquiredAt)
		if age < l.opts.StaleLeaseAfter {
			wait := l.opts.StaleLeaseAfter
			if !l.opts.Disabled && l.opts.Cooldown > wait {
				wait = l.opts.Cooldown
			}
			return Decision{RetryAfter: clamp(wait-age, time.Second, wait), Reason: ReasonPending}, true
		}
		l.logger.Warn("reclaiming stale drip lease",
			"key", rec.DripKey,
			"lease_id", rec.LeaseID,
			"lease_age", age.String(),
		)
	}
	if l.opts.Disabled || !rec.HasDripped() {
		return Decision{}, false
	}
	elapsed := now.Sub(rec.LastDripAt)
	if elapsed < l.opts.Cooldown {
		return Decision{RetryAfter: clamp(l.opts.Cooldown-elapsed, 0, l.opts.Cooldown), Reason: ReasonCooldown}, true
	}
	return Decision{}, false
}

// Release reports how the dispatch under lease ended. A success is always
// recorded, even when the lease was reclaimed meanwhile, because funds moved.
// A failure under a reclaimed lease changes nothing.
func (l *Limiter) Release(ctx context.Context, lease Lease, out Outcome) error {
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		rec, err := l.store.Get(ctx, lease.Key)
		if err != nil {
			return err
		}
		next := ledger.NewRecord(lease.Key)
		var expected int64
		if rec != nil {
			next = *rec
			expected = rec.Version
		}
		owned := next.Pending && next.LeaseID == lease.ID

		switch out.Kind {
		case Succeeded:
			next.AppendTransaction(out.Tx, l.opts.HistoryMax)
			if out.At.After(next.LastDripAt) {
				next.LastDripAt = out.At
			}
		case FailedTransient, FailedFatal:
			if !owned {
				l.logger.Info("lease already reclaimed, nothing to release",
					"key", lease.Key.String(), "lease_id", lease.ID, "outcome", out.Kind.String())
				return nil
			}
			if out.Kind == FailedTransient && l.opts.ConsumeOnTransient && out.At.After(next.LastDripAt) {
				next.LastDripAt = out.At
			}
		default:
			return fmt.Errorf("release: unknown outcome %d", out.Kind)
		}
		if owned {
			next.Pending = false
			next.LeaseID = ""
			next.LeaseAcquiredAt = time.Time{}
		}

		err = l.store.Put(ctx, next, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ledger.ErrVersionConflict) {
			return err
		}
		l.logger.Debug("ledger conflict on release", "key", lease.Key.String(), "attempt", attempt+1)
	}
	return ErrContention
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
