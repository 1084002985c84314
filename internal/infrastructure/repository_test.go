package infrastructure

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Poolfund/config"
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "sqlite:///" + filepath.Join(t.TempDir(), "test.db")},
	}
	db, err := NewDb(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type stack struct {
	db            *gorm.DB
	pools         *PoolRepository
	investors     *InvestorRepository
	distributions *DistributionRepository
	poolSvc       *pool.Service
	investorSvc   *investor.Service
	distSvc       *distribution.Service
	disburser     *recordingDisburser
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	tx := NewTransactor(db)
	s := &stack{
		db:            db,
		pools:         &PoolRepository{DB: db},
		investors:     &InvestorRepository{DB: db},
		distributions: &DistributionRepository{DB: db},
		disburser:     &recordingDisburser{keys: map[string]int{}},
	}
	s.poolSvc = pool.NewService(s.pools, tx, nil)
	s.investorSvc = investor.NewService(s.investors, s.pools, tx, nil)
	processor := distribution.NewProcessor(s.distributions, s.pools, tx, s.disburser, nil, distribution.ProcessorConfig{})
	s.distSvc = distribution.NewService(s.distributions, s.pools, s.investors, tx, processor, nil)
	return s
}

// seekingPool creates and publishes a pool of totalShares shares at 100.00 each.
func (s *stack) seekingPool(t *testing.T, manager ulid.ULID, totalShares int64) *pool.Pool {
	t.Helper()
	ctx := context.Background()
	p, err := s.poolSvc.CreatePool(ctx, &pool.CreateInput{
		ManagerId:     manager,
		Name:          "Harbor Street Apartments",
		Description:   "Twelve unit residential building",
		Location:      "Lisbon",
		TargetAmount:  decimal.NewFromInt(100 * totalShares),
		MinInvestment: decimal.NewFromInt(100),
		SharePrice:    decimal.NewFromInt(100),
		TotalShares:   totalShares,
	})
	require.NoError(t, err)
	p, err = s.poolSvc.Transition(ctx, p.Id, manager, pool.ActionPublish, "", false)
	require.NoError(t, err)
	return p
}

type recordingDisburser struct {
	mu      sync.Mutex
	keys    map[string]int
	failFor map[ulid.ULID]bool
}

func (d *recordingDisburser) Disburse(_ context.Context, in distribution.PayoutInstruction) (*distribution.Disbursement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[in.IdempotencyKey]++
	if d.failFor[in.UserId] {
		return nil, errors.New("account closed")
	}
	return &distribution.Disbursement{Reference: "ref-" + in.IdempotencyKey}, nil
}

func TestPoolRepository_RoundTrip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	manager := pkg.NewID()
	maxInvestment := decimal.RequireFromString("2500.50")
	deadline := time.Date(2027, 1, 15, 12, 0, 0, 0, time.UTC)

	created, err := s.poolSvc.CreatePool(ctx, &pool.CreateInput{
		ManagerId:       manager,
		Name:            "Riverside Solar",
		TargetAmount:    decimal.RequireFromString("50000.00"),
		MinInvestment:   decimal.RequireFromString("250.00"),
		MaxInvestment:   &maxInvestment,
		SharePrice:      decimal.RequireFromString("50.00"),
		TotalShares:     1000,
		ManagementFee:   decimal.RequireFromString("1.5"),
		FundingDeadline: &deadline,
	})
	require.NoError(t, err)

	got, err := s.pools.GetByID(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, created.Slug, got.Slug)
	assert.Equal(t, manager, got.ManagerId)
	assert.True(t, got.TargetAmount.Equal(decimal.NewFromInt(50000)))
	require.NotNil(t, got.MaxInvestment)
	assert.True(t, got.MaxInvestment.Equal(maxInvestment), got.MaxInvestment.String())
	require.NotNil(t, got.FundingDeadline)
	assert.True(t, got.FundingDeadline.Equal(deadline))
	assert.Equal(t, pool.StatusDraft, got.Status)
	assert.Equal(t, int64(1), got.Version)

	_, err = s.pools.GetByID(ctx, pkg.NewID())
	assert.ErrorIs(t, err, appErrors.ErrPoolNotFound)
}

func TestPoolRepository_UpdateGuarded(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.seekingPool(t, pkg.NewID(), 10)

	stale := *p
	p.Name = "Renamed"
	require.NoError(t, s.pools.UpdateGuarded(ctx, p, p.Version))
	assert.Equal(t, stale.Version+1, p.Version)

	stale.Description = ""
	err := s.pools.UpdateGuarded(ctx, &stale, stale.Version)
	assert.ErrorIs(t, err, appErrors.ErrConcurrencyConflict)

	got, err := s.pools.GetByID(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "Twelve unit residential building", got.Description)
}

func TestPoolRepository_ListFilters(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	manager := pkg.NewID()

	seeking := s.seekingPool(t, manager, 10)
	_, err := s.poolSvc.CreatePool(ctx, &pool.CreateInput{
		ManagerId:     manager,
		Name:          "Mountain Cabins",
		Location:      "Porto",
		TargetAmount:  decimal.NewFromInt(1000),
		MinInvestment: decimal.NewFromInt(500),
		SharePrice:    decimal.NewFromInt(10),
		TotalShares:   100,
	})
	require.NoError(t, err)

	status := pool.StatusSeeking
	pools, total, err := s.pools.List(ctx, &pool.ListFilters{Status: &status}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pools, 1)
	assert.Equal(t, seeking.Id, pools[0].Id)

	pools, total, err = s.pools.List(ctx, &pool.ListFilters{Search: "cabins"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Mountain Cabins", pools[0].Name)

	pools, _, err = s.pools.List(ctx, &pool.ListFilters{Location: "lisb"}, nil)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, seeking.Id, pools[0].Id)

	floor := decimal.NewFromInt(200)
	pools, _, err = s.pools.List(ctx, &pool.ListFilters{MinInvestment: &floor}, nil)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "Mountain Cabins", pools[0].Name)

	pools, total, err = s.pools.List(ctx, &pool.ListFilters{SortBy: pool.SortTargetAmount}, &pkg.PaginationParams{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, pools, 1)
	assert.Equal(t, "Harbor Street Apartments", pools[0].Name)
}

func TestInvest_ConcurrentRequestsNeverExceedTarget(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.seekingPool(t, pkg.NewID(), 10)

	const buyers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.investorSvc.Invest(ctx, &investor.InvestInput{
				PoolId:          p.Id,
				UserId:          pkg.NewID(),
				Shares:          1,
				AgreementSigned: true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
				return
			}
			rejected = append(rejected, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	for _, err := range rejected {
		assert.True(t,
			errors.Is(err, appErrors.ErrPoolNotOpen) ||
				errors.Is(err, appErrors.ErrInsufficientCapacity) ||
				errors.Is(err, appErrors.ErrConcurrencyConflict),
			err.Error())
	}

	got, err := s.pools.GetByID(ctx, p.Id)
	require.NoError(t, err)
	assert.True(t, got.RaisedAmount.Equal(got.TargetAmount), got.RaisedAmount.String())
	assert.Equal(t, pool.StatusFunded, got.Status)

	stats, err := s.pools.GetStats(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.SharesSold)
	assert.Equal(t, int64(10), stats.InvestorCount)
}

func TestInvest_CancelRestoresCapacity(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.seekingPool(t, pkg.NewID(), 10)
	user := pkg.NewID()

	receipt, err := s.investorSvc.Invest(ctx, &investor.InvestInput{PoolId: p.Id, UserId: user, Shares: 3, AgreementSigned: true})
	require.NoError(t, err)
	_, err = s.investorSvc.Invest(ctx, &investor.InvestInput{PoolId: p.Id, UserId: user, Shares: 2, AgreementSigned: true})
	require.NoError(t, err)

	entry, err := s.investors.GetByPoolAndUser(ctx, p.Id, user)
	require.NoError(t, err)
	assert.Equal(t, receipt.Id, entry.Id)
	assert.Equal(t, int64(5), entry.SharesOwned)
	assert.True(t, entry.InvestmentAmount.Equal(decimal.NewFromInt(500)))

	cancelled, err := s.investorSvc.CancelInvestment(ctx, entry.Id, user, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, investor.StatusCancelled, cancelled.Status)

	got, err := s.pools.GetByID(ctx, p.Id)
	require.NoError(t, err)
	assert.True(t, got.RaisedAmount.IsZero(), got.RaisedAmount.String())

	stats, err := s.pools.GetStats(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.SharesSold)

	refunds, err := s.pools.ListRefundObligations(ctx, p.Id)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.True(t, refunds[0].Amount.Equal(decimal.NewFromInt(500)))
}

func TestCancelPool_RecordsRefundPerInvestor(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	manager := pkg.NewID()
	p := s.seekingPool(t, manager, 10)

	for _, shares := range []int64{2, 3} {
		_, err := s.investorSvc.Invest(ctx, &investor.InvestInput{
			PoolId: p.Id, UserId: pkg.NewID(), Shares: shares, AgreementSigned: true,
		})
		require.NoError(t, err)
	}

	cancelled, err := s.poolSvc.CancelPool(ctx, p.Id, manager, "developer withdrew", true)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusCancelled, cancelled.Status)

	refunds, err := s.pools.ListRefundObligations(ctx, p.Id)
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	total := decimal.Zero
	for _, r := range refunds {
		assert.Equal(t, pool.RefundPending, r.Status)
		assert.Equal(t, "developer withdrew", r.Reason)
		total = total.Add(r.Amount)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(500)), total.String())

	events, err := s.pools.ListEvents(ctx, p.Id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, pool.ActionPublish, events[0].Action)
	assert.Equal(t, pool.ActionCancel, events[1].Action)
	assert.Equal(t, manager, events[1].ActorId)
}

func TestDistribution_ProcessIsIdempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	manager := pkg.NewID()
	p := s.seekingPool(t, manager, 10)

	alice, bob := pkg.NewID(), pkg.NewID()
	for user, shares := range map[ulid.ULID]int64{alice: 6, bob: 4} {
		_, err := s.investorSvc.Invest(ctx, &investor.InvestInput{PoolId: p.Id, UserId: user, Shares: shares, AgreementSigned: true})
		require.NoError(t, err)
	}
	_, err := s.poolSvc.Transition(ctx, p.Id, manager, pool.ActionActivate, "", false)
	require.NoError(t, err)

	d, err := s.distSvc.Create(ctx, &distribution.CreateInput{
		PoolId:      p.Id,
		ActorId:     manager,
		Type:        distribution.TypeDividend,
		GrossAmount: decimal.RequireFromString("1000.01"),
		Fees:        decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusPending, d.Status)
	assert.True(t, d.NetAmount.Equal(decimal.NewFromInt(1000)))

	stored, err := s.distributions.ListPayouts(ctx, d.Id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	sum := decimal.Zero
	for _, po := range stored {
		sum = sum.Add(po.Amount)
	}
	assert.True(t, sum.Equal(d.DistributedAmount), sum.String())

	got, err := s.pools.GetByID(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusDistributing, got.Status)

	s.disburser.failFor = map[ulid.ULID]bool{bob: true}
	first, err := s.distSvc.Process(ctx, d.Id, manager)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusFailed, first.Status)
	require.NotNil(t, first.FailureReason)
	assert.Equal(t, "1 of 2 payouts failed", *first.FailureReason)

	s.disburser.failFor = nil
	second, err := s.distSvc.Process(ctx, d.Id, manager)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, second.Status)

	third, err := s.distSvc.Process(ctx, d.Id, manager)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, third.Status)

	for _, po := range third.Payouts {
		assert.Equal(t, distribution.StatusCompleted, po.Status)
		require.NotNil(t, po.ExternalReference)
		assert.Equal(t, "ref-"+po.Id.String(), *po.ExternalReference)
		if po.UserId == alice {
			assert.Equal(t, 1, s.disburser.keys[po.Id.String()])
			assert.Equal(t, 1, po.Attempts)
		} else {
			assert.Equal(t, 2, s.disburser.keys[po.Id.String()])
			assert.Equal(t, 2, po.Attempts)
		}
	}

	got, err = s.pools.GetByID(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusActive, got.Status)
}

func TestDistributionRepository_ClaimLease(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	d := &distribution.Distribution{
		Id:                pkg.NewID(),
		PoolId:            pkg.NewID(),
		Type:              distribution.TypeInterest,
		GrossAmount:       decimal.NewFromInt(10),
		NetAmount:         decimal.NewFromInt(10),
		DistributedAmount: decimal.NewFromInt(10),
		Status:            distribution.StatusPending,
		CreatedBy:         pkg.NewID(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, s.distributions.Create(ctx, d))

	first, second := pkg.NewIDString(), pkg.NewIDString()
	ok, err := s.distributions.Claim(ctx, d.Id, first, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.distributions.Claim(ctx, d.Id, second, now.Add(30*time.Second), now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken")

	ok, err = s.distributions.RenewLease(ctx, d.Id, first, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	later := now.Add(10 * time.Minute)
	ids, err := s.distributions.ListResumable(ctx, later.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []ulid.ULID{d.Id}, ids)

	ok, err = s.distributions.Claim(ctx, d.Id, second, later, later.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "stale lease is taken over")

	ok, err = s.distributions.RenewLease(ctx, d.Id, first, later)
	require.NoError(t, err)
	assert.False(t, ok, "the previous holder cannot renew")

	d.Status = distribution.StatusCompleted
	d.CompletedAt = &later
	d.UpdatedAt = later
	ok, err = s.distributions.Finish(ctx, d, first)
	require.NoError(t, err)
	assert.False(t, ok, "the previous holder cannot record an outcome")

	got, err := s.distributions.GetByID(ctx, d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusProcessing, got.Status)

	open, err := s.distributions.CountOpen(ctx, d.PoolId, pkg.NewID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)
	open, err = s.distributions.CountOpen(ctx, d.PoolId, d.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), open)
}

func TestDistributionRepository_ClaimPayoutSkipsInFlight(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	d := &distribution.Distribution{
		Id:                pkg.NewID(),
		PoolId:            pkg.NewID(),
		Type:              distribution.TypeDividend,
		GrossAmount:       decimal.NewFromInt(10),
		NetAmount:         decimal.NewFromInt(10),
		DistributedAmount: decimal.NewFromInt(10),
		Status:            distribution.StatusPending,
		CreatedBy:         pkg.NewID(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	payout := &distribution.Payout{
		Id:                 pkg.NewID(),
		DistributionId:     d.Id,
		PoolId:             d.PoolId,
		InvestorId:         pkg.NewID(),
		UserId:             pkg.NewID(),
		SharesSnapshot:     1,
		PercentageSnapshot: decimal.NewFromInt(100),
		Amount:             decimal.NewFromInt(10),
		Status:             distribution.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	d.Payouts = []*distribution.Payout{payout}
	require.NoError(t, s.distributions.Create(ctx, d))

	ok, err := s.distributions.ClaimPayout(ctx, payout.Id, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.distributions.ClaimPayout(ctx, payout.Id, now.Add(30*time.Second), now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "an in-flight payout belongs to the run that claimed it")

	ok, err = s.distributions.ClaimPayout(ctx, payout.Id, now.Add(10*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "a stuck payout can be claimed again")

	require.NoError(t, s.distributions.CompletePayout(ctx, payout.Id, nil, now.Add(11*time.Minute)))
	ok, err = s.distributions.ClaimPayout(ctx, payout.Id, now.Add(time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	payouts, err := s.distributions.ListPayouts(ctx, d.Id)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, 2, payouts[0].Attempts)
}
