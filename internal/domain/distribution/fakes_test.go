package distribution_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/investor"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
)

type fakeRepository struct {
	mu            sync.Mutex
	distributions map[ulid.ULID]distribution.Distribution
	payouts       map[ulid.ULID]distribution.Payout
	leases        map[ulid.ULID]string
	order         []ulid.ULID
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		distributions: make(map[ulid.ULID]distribution.Distribution),
		payouts:       make(map[ulid.ULID]distribution.Payout),
		leases:        make(map[ulid.ULID]string),
	}
}

func (f *fakeRepository) Create(_ context.Context, d *distribution.Distribution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *d
	stored.Payouts = nil
	f.distributions[d.Id] = stored
	for _, p := range d.Payouts {
		f.payouts[p.Id] = *p
		f.order = append(f.order, p.Id)
	}
	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, id ulid.ULID) (*distribution.Distribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.distributions[id]
	if !ok {
		return nil, appErrors.ErrDistributionNotFound
	}
	return &d, nil
}

func (f *fakeRepository) ListByPool(_ context.Context, poolID ulid.ULID, filters *distribution.ListFilters, _ *pkg.PaginationParams) ([]*distribution.Distribution, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*distribution.Distribution
	for _, stored := range f.distributions {
		d := stored
		if d.PoolId != poolID {
			continue
		}
		if filters != nil && filters.Status != nil && d.Status != *filters.Status {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id.Compare(out[j].Id) < 0 })
	return out, int64(len(out)), nil
}

func (f *fakeRepository) ListPayouts(_ context.Context, distributionID ulid.ULID) ([]*distribution.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*distribution.Payout
	for _, id := range f.order {
		p := f.payouts[id]
		if p.DistributionId == distributionID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (f *fakeRepository) Claim(_ context.Context, id ulid.ULID, leaseToken string, now, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.distributions[id]
	if !ok {
		return false, appErrors.ErrDistributionNotFound
	}
	switch d.Status {
	case distribution.StatusPending, distribution.StatusFailed:
	case distribution.StatusProcessing:
		if d.ProcessingStartedAt != nil && !d.ProcessingStartedAt.Before(staleBefore) {
			return false, nil
		}
	default:
		return false, nil
	}
	d.Status = distribution.StatusProcessing
	d.ProcessingStartedAt = &now
	d.UpdatedAt = now
	f.distributions[id] = d
	f.leases[id] = leaseToken
	return true, nil
}

func (f *fakeRepository) RenewLease(_ context.Context, id ulid.ULID, leaseToken string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.distributions[id]
	if d.Status != distribution.StatusProcessing || f.leases[id] != leaseToken {
		return false, nil
	}
	d.ProcessingStartedAt = &now
	d.UpdatedAt = now
	f.distributions[id] = d
	return true, nil
}

func (f *fakeRepository) ClaimPayout(_ context.Context, payoutID ulid.ULID, now, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payouts[payoutID]
	switch p.Status {
	case distribution.StatusPending, distribution.StatusFailed:
	case distribution.StatusProcessing:
		if !p.UpdatedAt.Before(staleBefore) {
			return false, nil
		}
	default:
		return false, nil
	}
	p.Status = distribution.StatusProcessing
	p.Attempts++
	p.UpdatedAt = now
	f.payouts[payoutID] = p
	return true, nil
}

func (f *fakeRepository) CompletePayout(_ context.Context, payoutID ulid.ULID, reference *string, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payouts[payoutID]
	p.Status = distribution.StatusCompleted
	p.ExternalReference = reference
	p.LastError = nil
	p.PaidAt = &paidAt
	p.UpdatedAt = paidAt
	f.payouts[payoutID] = p
	return nil
}

func (f *fakeRepository) FailPayout(_ context.Context, payoutID ulid.ULID, reason string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payouts[payoutID]
	p.Status = distribution.StatusFailed
	p.LastError = &reason
	p.UpdatedAt = now
	f.payouts[payoutID] = p
	return nil
}

func (f *fakeRepository) Finish(_ context.Context, d *distribution.Distribution, leaseToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.distributions[d.Id]
	if stored.Status != distribution.StatusProcessing || f.leases[d.Id] != leaseToken {
		return false, nil
	}
	stored.Status = d.Status
	stored.FailureReason = d.FailureReason
	stored.CompletedAt = d.CompletedAt
	stored.UpdatedAt = d.UpdatedAt
	f.distributions[d.Id] = stored
	delete(f.leases, d.Id)
	return true, nil
}

func (f *fakeRepository) CountOpen(_ context.Context, poolID, excludeID ulid.ULID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, d := range f.distributions {
		if d.PoolId == poolID && id != excludeID && d.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) ListResumable(_ context.Context, staleBefore time.Time, limit int) ([]ulid.ULID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ulid.ULID
	for id, d := range f.distributions {
		switch {
		case d.Status == distribution.StatusPending,
			d.Status == distribution.StatusFailed && d.UpdatedAt.Before(staleBefore),
			d.Status == distribution.StatusProcessing && d.ProcessingStartedAt != nil && d.ProcessingStartedAt.Before(staleBefore):
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepository) payout(id ulid.ULID) distribution.Payout {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payouts[id]
}

func (f *fakeRepository) putPayout(p distribution.Payout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts[p.Id] = p
}

func (f *fakeRepository) put(d distribution.Distribution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distributions[d.Id] = d
}

// fakeInvestors serves the cap table snapshot.
type fakeInvestors struct {
	entries []*investor.Investor
}

func (f *fakeInvestors) Create(context.Context, *investor.Investor) error { return nil }
func (f *fakeInvestors) Update(context.Context, *investor.Investor) error { return nil }

func (f *fakeInvestors) GetByID(_ context.Context, id ulid.ULID) (*investor.Investor, error) {
	for _, e := range f.entries {
		if e.Id == id {
			return e, nil
		}
	}
	return nil, appErrors.ErrInvestorNotFound
}

func (f *fakeInvestors) GetByPoolAndUser(_ context.Context, poolID, userID ulid.ULID) (*investor.Investor, error) {
	for _, e := range f.entries {
		if e.PoolId == poolID && e.UserId == userID {
			return e, nil
		}
	}
	return nil, appErrors.ErrInvestorNotFound
}

func (f *fakeInvestors) ListByPool(ctx context.Context, poolID ulid.ULID, _ *investor.ListFilters, _ *pkg.PaginationParams) ([]*investor.Investor, int64, error) {
	out, err := f.ListActiveByPool(ctx, poolID)
	return out, int64(len(out)), err
}

func (f *fakeInvestors) ListActiveByPool(_ context.Context, poolID ulid.ULID) ([]*investor.Investor, error) {
	var out []*investor.Investor
	for _, e := range f.entries {
		if e.PoolId == poolID && e.IsActive() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeInvestors) ListByUser(context.Context, ulid.ULID, *pkg.PaginationParams) ([]*investor.Investor, int64, error) {
	return nil, 0, nil
}

// fakeDisburser counts calls per idempotency key and fails users in failFor
// until they are removed.
type fakeDisburser struct {
	mu      sync.Mutex
	calls   map[string]int
	failFor map[ulid.ULID]bool
}

func newFakeDisburser() *fakeDisburser {
	return &fakeDisburser{calls: make(map[string]int), failFor: make(map[ulid.ULID]bool)}
}

func (f *fakeDisburser) Disburse(_ context.Context, in distribution.PayoutInstruction) (*distribution.Disbursement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[in.IdempotencyKey]++
	if f.failFor[in.UserId] {
		return nil, appErrors.NewExternalServiceError("disbursement", errors.New("provider unavailable"))
	}
	return &distribution.Disbursement{Reference: "tx-" + in.IdempotencyKey}, nil
}

func (f *fakeDisburser) setFailing(user ulid.ULID, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[user] = failing
}

func (f *fakeDisburser) callsFor(payoutID ulid.ULID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[payoutID.String()]
}

func (f *fakeDisburser) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// gatedDisburser holds its first call until release is closed, then hands
// every call to next.
type gatedDisburser struct {
	next    distribution.Disburser
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedDisburser(next distribution.Disburser) *gatedDisburser {
	return &gatedDisburser{next: next, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedDisburser) Disburse(ctx context.Context, in distribution.PayoutInstruction) (*distribution.Disbursement, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.next.Disburse(ctx, in)
}

// steppedClock only moves when advanced.
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
