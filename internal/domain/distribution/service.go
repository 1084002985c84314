package distribution

import (
	"context"
	"errors"
	"strings"

	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type CreateInput struct {
	PoolId      ulid.ULID
	ActorId     ulid.ULID
	Type        Type
	Period      string
	GrossAmount decimal.Decimal
	Fees        decimal.Decimal
	Taxes       decimal.Decimal
	Notes       *string
}

type Service struct {
	Repository Repository
	Pools      pool.Repository
	Investors  investor.Repository
	Transactor shared.Transactor
	Processor  *Processor
	Notifier   pool.Notifier
	Clock      shared.Clock
}

func NewService(repo Repository, pools pool.Repository, investors investor.Repository, tx shared.Transactor, processor *Processor, notifier pool.Notifier) *Service {
	if notifier == nil {
		notifier = pool.NopNotifier{}
	}
	return &Service{
		Repository: repo,
		Pools:      pools,
		Investors:  investors,
		Transactor: tx,
		Processor:  processor,
		Notifier:   notifier,
	}
}

// Create snapshots the cap table and records a pending distribution with one
// payout per active investor. Nothing is paid here; see Processor.Process.
func (s *Service) Create(ctx context.Context, in *CreateInput) (*Distribution, error) {
	if err := validateAmounts(in); err != nil {
		return nil, err
	}

	gross := pkg.RoundMoney(in.GrossAmount)
	fees := pkg.RoundMoney(in.Fees)
	taxes := pkg.RoundMoney(in.Taxes)
	net := gross.Sub(fees).Sub(taxes)

	var (
		result *Distribution
		event  *pool.Event
		moved  *pool.Pool
	)

	err := shared.RetryOnConflict(ctx, shared.DefaultConflictRetries, func(ctx context.Context) error {
		event, moved = nil, nil
		return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			p, err := s.Pools.GetByID(ctx, in.PoolId)
			if err != nil {
				return err
			}
			if !p.IsManagedBy(in.ActorId) {
				return appErrors.ErrForbidden.WithMessage("Only the pool manager can create distributions")
			}
			if err := checkPoolAccepts(p, in.Type); err != nil {
				return err
			}

			entries, err := s.Investors.ListActiveByPool(ctx, p.Id)
			if err != nil {
				return err
			}
			holdings := make([]Holding, 0, len(entries))
			for _, e := range entries {
				holdings = append(holdings, Holding{
					InvestorId: e.Id,
					UserId:     e.UserId,
					Shares:     e.SharesOwned,
					JoinedAt:   e.JoinedAt,
				})
			}

			alloc, err := Allocate(pkg.ToCents(net), p.TotalShares, holdings)
			if err != nil {
				return err
			}

			now := s.Clock.Now()
			d := &Distribution{
				Id:                pkg.NewID(),
				PoolId:            p.Id,
				Type:              in.Type,
				Period:            strings.TrimSpace(in.Period),
				GrossAmount:       gross,
				Fees:              fees,
				Taxes:             taxes,
				NetAmount:         net,
				DistributedAmount: pkg.FromCents(alloc.DistributableCents),
				RetainedAmount:    pkg.FromCents(alloc.RetainedCents),
				Status:            StatusPending,
				Notes:             shared.TrimPtr(in.Notes),
				CreatedBy:         in.ActorId,
				CreatedAt:         now,
				UpdatedAt:         now,
				Payouts:           make([]*Payout, 0, len(alloc.Allocations)),
			}
			for _, a := range alloc.Allocations {
				d.Payouts = append(d.Payouts, &Payout{
					Id:                 pkg.NewID(),
					DistributionId:     d.Id,
					PoolId:             p.Id,
					InvestorId:         a.InvestorId,
					UserId:             a.UserId,
					SharesSnapshot:     a.Shares,
					PercentageSnapshot: a.Percentage,
					Amount:             pkg.FromCents(a.AmountCents),
					Status:             StatusPending,
					CreatedAt:          now,
					UpdatedAt:          now,
				})
			}

			// the pool write serializes this snapshot against concurrent cancels and status changes
			expected := p.Version
			p.UpdatedAt = now
			if p.Status == pool.StatusActive {
				if event, err = p.Apply(pool.ActionStartDistribution, "", now); err != nil {
					return err
				}
				event.ActorId = in.ActorId
				moved = p
			}
			if in.Type == TypeSaleProceeds {
				p.FinalDistributionCreated = true
			}
			if err := pool.Persist(ctx, s.Pools, p, expected, event); err != nil {
				return err
			}

			if err := s.Repository.Create(ctx, d); err != nil {
				return err
			}
			result = d
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordDistributionCreated(string(result.Type))
	logger.Info().
		Str("distribution_id", result.Id.String()).
		Str("pool_id", result.PoolId.String()).
		Str("type", string(result.Type)).
		Str("net_amount", result.NetAmount.String()).
		Str("retained_amount", result.RetainedAmount.String()).
		Int("payouts", len(result.Payouts)).
		Msg("distribution created")

	if event != nil {
		s.Notifier.Notify(ctx, pool.NotificationFor(moved, event, false))
	}
	return result, nil
}

// Get returns the distribution with its payouts. Visible to the pool manager
// and to investors who receive one of its payouts.
func (s *Service) Get(ctx context.Context, id, actorID ulid.ULID) (*Distribution, error) {
	d, err := s.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.Pools.GetByID(ctx, d.PoolId)
	if err != nil {
		return nil, err
	}
	payouts, err := s.Repository.ListPayouts(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.IsManagedBy(actorID) {
		recipient := false
		for _, po := range payouts {
			if po.UserId == actorID {
				recipient = true
				break
			}
		}
		if !recipient {
			return nil, appErrors.ErrForbidden.WithMessage("Only the pool manager and payout recipients can view this distribution")
		}
	}

	d.Payouts = payouts
	return d, nil
}

func (s *Service) ListByPool(ctx context.Context, poolID, actorID ulid.ULID, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Distribution, int64, error) {
	p, err := s.Pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, 0, err
	}
	if !p.IsManagedBy(actorID) {
		if _, err := s.Investors.GetByPoolAndUser(ctx, poolID, actorID); err != nil {
			if errors.Is(err, appErrors.ErrInvestorNotFound) {
				return nil, 0, appErrors.ErrForbidden.WithMessage("Only the manager and investors can view distributions")
			}
			return nil, 0, err
		}
	}
	if filters == nil {
		filters = &ListFilters{}
	}
	return s.Repository.ListByPool(ctx, poolID, filters, pkg.NormalizePagination(pagination))
}

// Process runs the payout job on behalf of the pool manager.
func (s *Service) Process(ctx context.Context, id, actorID ulid.ULID) (*Distribution, error) {
	d, err := s.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.Pools.GetByID(ctx, d.PoolId)
	if err != nil {
		return nil, err
	}
	if !p.IsManagedBy(actorID) {
		return nil, appErrors.ErrForbidden.WithMessage("Only the pool manager can process distributions")
	}
	return s.Processor.Process(ctx, id)
}

func validateAmounts(in *CreateInput) error {
	if !in.Type.Valid() {
		return appErrors.NewValidationError("type", "type must be one of: dividend interest principal_return sale_proceeds")
	}
	if !in.GrossAmount.IsPositive() {
		return appErrors.NewValidationError("grossAmount", "grossAmount must be greater than 0")
	}
	if in.Fees.IsNegative() {
		return appErrors.NewValidationError("fees", "fees must be greater than or equal to 0")
	}
	if in.Taxes.IsNegative() {
		return appErrors.NewValidationError("taxes", "taxes must be greater than or equal to 0")
	}
	for _, amount := range []struct {
		field string
		value decimal.Decimal
	}{
		{"grossAmount", in.GrossAmount},
		{"fees", in.Fees},
		{"taxes", in.Taxes},
	} {
		if !pkg.IsWholeCents(amount.value) {
			return appErrors.NewValidationError(amount.field, amount.field+" must have at most 2 decimal places")
		}
	}
	if in.Fees.Add(in.Taxes).GreaterThan(in.GrossAmount) {
		return appErrors.NewValidationError("fees", "fees plus taxes must not exceed grossAmount")
	}
	return nil
}

// checkPoolAccepts allows distributions from active and distributing pools.
// A completed pool only takes reconciling entries, never a second sale.
func checkPoolAccepts(p *pool.Pool, t Type) error {
	switch p.Status {
	case pool.StatusActive, pool.StatusDistributing:
		return nil
	case pool.StatusCompleted:
		if t != TypeSaleProceeds {
			return nil
		}
		return appErrors.NewInvalidTransitionError(string(p.Status), string(pool.StatusDistributing)).
			WithMessage("A completed pool only accepts reconciling distributions")
	}
	return appErrors.NewInvalidTransitionError(string(p.Status), string(pool.StatusDistributing)).
		WithMessage("Distributions require an active or distributing pool")
}
