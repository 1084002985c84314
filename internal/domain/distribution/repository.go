package distribution

import (
	"context"
	"time"

	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
)

type ListFilters struct {
	Status *Status
}

type Repository interface {
	// Create stores d together with d.Payouts.
	Create(ctx context.Context, d *Distribution) error
	GetByID(ctx context.Context, id ulid.ULID) (*Distribution, error)
	ListByPool(ctx context.Context, poolID ulid.ULID, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Distribution, int64, error)
	ListPayouts(ctx context.Context, distributionID ulid.ULID) ([]*Payout, error)

	// Claim moves the distribution to processing under leaseToken when it is
	// pending or failed, or processing with ProcessingStartedAt before
	// staleBefore. It reports false when another run holds a live lease or the
	// distribution is completed.
	Claim(ctx context.Context, id ulid.ULID, leaseToken string, now, staleBefore time.Time) (bool, error)
	// RenewLease moves ProcessingStartedAt to now while leaseToken still owns
	// the distribution. It reports false once another run has taken over.
	RenewLease(ctx context.Context, id ulid.ULID, leaseToken string, now time.Time) (bool, error)
	// ClaimPayout moves a pending or failed payout to processing and bumps
	// Attempts. A payout already processing is only taken when its UpdatedAt is
	// before staleBefore. It reports false for completed and in-flight payouts.
	ClaimPayout(ctx context.Context, payoutID ulid.ULID, now, staleBefore time.Time) (bool, error)
	CompletePayout(ctx context.Context, payoutID ulid.ULID, reference *string, paidAt time.Time) error
	FailPayout(ctx context.Context, payoutID ulid.ULID, reason string, now time.Time) error
	// Finish records the outcome of a run and releases its lease. It reports
	// false when leaseToken no longer owns the distribution.
	Finish(ctx context.Context, d *Distribution, leaseToken string) (bool, error)

	// CountOpen counts distributions of the pool that are not completed, excluding excludeID.
	CountOpen(ctx context.Context, poolID, excludeID ulid.ULID) (int64, error)
	// ListResumable returns ids of distributions a sweeper should pick up.
	ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]ulid.ULID, error)
}
