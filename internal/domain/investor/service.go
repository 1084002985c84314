package investor

import (
	"context"
	"errors"
	"strings"
	"time"

	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type InvestInput struct {
	PoolId          ulid.ULID
	UserId          ulid.ULID
	Shares          int64
	AgreementSigned bool
	PaymentMethodId *string
}

// Receipt is the ledger entry after an investment plus the pool state it produced.
type Receipt struct {
	*Investor
	PoolStatus       pool.Status     `json:"poolStatus"`
	PoolRaisedAmount decimal.Decimal `json:"poolRaisedAmount"`
}

type Service struct {
	Repository  Repository
	Pools       pool.Repository
	Transactor  shared.Transactor
	Notifier    pool.Notifier
	Clock       shared.Clock
	MaxAttempts int
}

func NewService(repo Repository, pools pool.Repository, tx shared.Transactor, notifier pool.Notifier) *Service {
	if notifier == nil {
		notifier = pool.NopNotifier{}
	}
	return &Service{
		Repository:  repo,
		Pools:       pools,
		Transactor:  tx,
		Notifier:    notifier,
		MaxAttempts: shared.DefaultConflictRetries,
	}
}

// Invest buys shares in a seeking pool. The raise is checked and applied under the
// pool's version guard, so concurrent requests can never push raisedAmount past
// the target. A lost race is retried against fresh state up to MaxAttempts times.
func (s *Service) Invest(ctx context.Context, in *InvestInput) (*Receipt, error) {
	if in.Shares < 1 {
		return nil, appErrors.NewValidationError("shares", "shares must be at least 1")
	}
	if !in.AgreementSigned {
		return nil, appErrors.NewValidationError("agreementSigned", "agreementSigned must be true")
	}

	var (
		receipt *Receipt
		event   *pool.Event
		funded  *pool.Pool
	)

	err := shared.RetryOnConflict(ctx, s.MaxAttempts, func(ctx context.Context) error {
		event, funded = nil, nil
		return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			p, err := s.Pools.GetByID(ctx, in.PoolId)
			if err != nil {
				return err
			}
			now := s.Clock.Now()

			if p.Status != pool.StatusSeeking || p.DeadlinePassed(now) {
				details := map[string]interface{}{"status": string(p.Status)}
				if p.FundingDeadline != nil {
					details["fundingDeadline"] = p.FundingDeadline
				}
				return appErrors.ErrPoolNotOpen.WithDetails(details)
			}

			amount := pkg.RoundMoney(p.SharePrice.Mul(decimal.NewFromInt(in.Shares)))
			if amount.LessThan(p.MinInvestment) {
				return appErrors.ErrBelowMinimum.WithDetails(map[string]interface{}{
					"amount":        amount.StringFixed(pkg.MoneyPlaces),
					"minInvestment": p.MinInvestment.StringFixed(pkg.MoneyPlaces),
				})
			}

			entry, err := s.Repository.GetByPoolAndUser(ctx, p.Id, in.UserId)
			if err != nil && !errors.Is(err, appErrors.ErrInvestorNotFound) {
				return err
			}
			if entry != nil && !entry.IsActive() {
				reactivate(entry, now)
			}

			cumulative := amount
			if entry != nil {
				cumulative = entry.InvestmentAmount.Add(amount)
			}
			if p.MaxInvestment != nil && cumulative.GreaterThan(*p.MaxInvestment) {
				return appErrors.ErrAboveMaximum.WithDetails(map[string]interface{}{
					"amount":        cumulative.StringFixed(pkg.MoneyPlaces),
					"maxInvestment": p.MaxInvestment.StringFixed(pkg.MoneyPlaces),
				})
			}

			if p.RaisedAmount.Add(amount).GreaterThan(p.TargetAmount) {
				return appErrors.ErrInsufficientCapacity.WithDetails(map[string]interface{}{
					"requested": amount.StringFixed(pkg.MoneyPlaces),
					"remaining": p.RemainingCapacity().StringFixed(pkg.MoneyPlaces),
				})
			}
			stats, err := s.Pools.GetStats(ctx, p.Id)
			if err != nil {
				return err
			}
			if stats.SharesSold+in.Shares > p.TotalShares {
				return appErrors.ErrInsufficientCapacity.WithDetails(map[string]interface{}{
					"requestedShares": in.Shares,
					"remainingShares": p.TotalShares - stats.SharesSold,
				})
			}

			expected := p.Version
			p.RaisedAmount = p.RaisedAmount.Add(amount)
			p.UpdatedAt = now
			if p.RaisedAmount.Equal(p.TargetAmount) {
				if event, err = p.Apply(pool.ActionFund, "", now); err != nil {
					return err
				}
				event.ActorId = in.UserId
				funded = p
			}
			if err := pool.Persist(ctx, s.Pools, p, expected, event); err != nil {
				return err
			}

			paymentMethod := shared.TrimPtr(in.PaymentMethodId)
			if entry == nil {
				entry = &Investor{
					Id:               pkg.NewID(),
					PoolId:           p.Id,
					UserId:           in.UserId,
					InvestmentAmount: amount,
					SharesOwned:      in.Shares,
					Status:           StatusActive,
					PaymentMethodId:  paymentMethod,
					JoinedAt:         now,
					UpdatedAt:        now,
				}
				if err := s.Repository.Create(ctx, entry); err != nil {
					return err
				}
			} else {
				entry.InvestmentAmount = entry.InvestmentAmount.Add(amount)
				entry.SharesOwned += in.Shares
				if paymentMethod != nil {
					entry.PaymentMethodId = paymentMethod
				}
				entry.UpdatedAt = now
				if err := s.Repository.Update(ctx, entry); err != nil {
					return err
				}
			}

			receipt = &Receipt{
				Investor:         entry.WithPercentage(p.TotalShares),
				PoolStatus:       p.Status,
				PoolRaisedAmount: p.RaisedAmount,
			}
			return nil
		})
	})
	if err != nil {
		metrics.RecordInvestment(outcomeOf(err))
		return nil, err
	}

	metrics.RecordInvestment("admitted")
	logger.Info().
		Str("pool_id", in.PoolId.String()).
		Str("user_id", in.UserId.String()).
		Int64("shares", in.Shares).
		Str("raised_amount", receipt.PoolRaisedAmount.String()).
		Msg("investment admitted")

	if event != nil {
		s.Notifier.Notify(ctx, pool.NotificationFor(funded, event, true))
	}
	return receipt, nil
}

// CancelInvestment withdraws a ledger entry while the pool is still raising.
// The entry is kept with zeroed amounts and the refund owed is recorded separately.
func (s *Service) CancelInvestment(ctx context.Context, investorID, actorID ulid.ULID, reason string) (*Investor, error) {
	var (
		result   *Investor
		event    *pool.Event
		reopened *pool.Pool
	)

	err := shared.RetryOnConflict(ctx, s.MaxAttempts, func(ctx context.Context) error {
		event, reopened = nil, nil
		return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			entry, err := s.Repository.GetByID(ctx, investorID)
			if err != nil {
				return err
			}
			p, err := s.Pools.GetByID(ctx, entry.PoolId)
			if err != nil {
				return err
			}
			if entry.UserId != actorID && !p.IsManagedBy(actorID) {
				return appErrors.ErrForbidden.WithMessage("Only the investor or the pool manager can cancel this investment")
			}
			if !entry.IsActive() {
				return appErrors.ErrNotCancellable.
					WithMessage("Investment is already cancelled").
					WithDetails(map[string]interface{}{"investorStatus": string(entry.Status)})
			}
			if p.Status != pool.StatusSeeking && p.Status != pool.StatusFunded {
				return appErrors.ErrNotCancellable.WithDetails(map[string]interface{}{"poolStatus": string(p.Status)})
			}

			now := s.Clock.Now()
			refunded := entry.InvestmentAmount
			expected := p.Version

			p.RaisedAmount = p.RaisedAmount.Sub(refunded)
			if p.RaisedAmount.IsNegative() {
				logger.Warn().
					Str("pool_id", p.Id.String()).
					Str("raised_amount", p.RaisedAmount.String()).
					Msg("raised amount would go negative, clamping to zero")
				p.RaisedAmount = decimal.Zero
			}
			p.UpdatedAt = now
			if p.Status == pool.StatusFunded && !p.ClosedEarly && p.RaisedAmount.LessThan(p.TargetAmount) {
				if event, err = p.Apply(pool.ActionReopen, "investment cancelled", now); err != nil {
					return err
				}
				event.ActorId = actorID
				reopened = p
			}
			if err := pool.Persist(ctx, s.Pools, p, expected, event); err != nil {
				return err
			}

			cancelReason := strings.TrimSpace(reason)
			entry.Status = StatusCancelled
			entry.InvestmentAmount = decimal.Zero
			entry.SharesOwned = 0
			entry.CancelledAt = &now
			if cancelReason != "" {
				entry.CancelReason = &cancelReason
			}
			entry.UpdatedAt = now
			if err := s.Repository.Update(ctx, entry); err != nil {
				return err
			}

			if err := s.Pools.CreateRefundObligation(ctx, &pool.RefundObligation{
				Id:         pkg.NewID(),
				PoolId:     p.Id,
				InvestorId: entry.Id,
				UserId:     entry.UserId,
				Amount:     refunded,
				Reason:     refundReason(cancelReason),
				Status:     pool.RefundPending,
				CreatedAt:  now,
			}); err != nil {
				return err
			}

			result = entry.WithPercentage(p.TotalShares)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("investor_id", investorID.String()).
		Str("actor_id", actorID.String()).
		Msg("investment cancelled")

	if event != nil {
		s.Notifier.Notify(ctx, pool.NotificationFor(reopened, event, true))
	}
	return result, nil
}

// ListPoolInvestors returns the cap table. Visible to the manager and to investors of the pool.
func (s *Service) ListPoolInvestors(ctx context.Context, poolID, actorID ulid.ULID, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Investor, int64, error) {
	p, err := s.Pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, 0, err
	}
	if !p.IsManagedBy(actorID) {
		if _, err := s.Repository.GetByPoolAndUser(ctx, poolID, actorID); err != nil {
			if errors.Is(err, appErrors.ErrInvestorNotFound) {
				return nil, 0, appErrors.ErrForbidden.WithMessage("Only the manager and investors can view the cap table")
			}
			return nil, 0, err
		}
	}

	entries, total, err := s.Repository.ListByPool(ctx, poolID, filters, pkg.NormalizePagination(pagination))
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		e.WithPercentage(p.TotalShares)
	}
	return entries, total, nil
}

func (s *Service) ListUserInvestments(ctx context.Context, userID ulid.ULID, pagination *pkg.PaginationParams) ([]*Investor, int64, error) {
	entries, total, err := s.Repository.ListByUser(ctx, userID, pkg.NormalizePagination(pagination))
	if err != nil {
		return nil, 0, err
	}

	totals := make(map[ulid.ULID]int64)
	for _, e := range entries {
		shares, ok := totals[e.PoolId]
		if !ok {
			p, err := s.Pools.GetByID(ctx, e.PoolId)
			if err != nil {
				return nil, 0, err
			}
			shares = p.TotalShares
			totals[e.PoolId] = shares
		}
		e.WithPercentage(shares)
	}
	return entries, total, nil
}

func reactivate(entry *Investor, now time.Time) {
	entry.Status = StatusActive
	entry.InvestmentAmount = decimal.Zero
	entry.SharesOwned = 0
	entry.JoinedAt = now
	entry.CancelledAt = nil
	entry.CancelReason = nil
}

func refundReason(reason string) string {
	if reason == "" {
		return "investment cancelled"
	}
	return reason
}

func outcomeOf(err error) string {
	if appErr, ok := appErrors.AsAppError(err); ok {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
