package pool

import (
	"context"
	"strings"
	"time"

	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type CreateInput struct {
	ManagerId             ulid.ULID
	Name                  string
	Description           string
	Location              string
	TargetAmount          decimal.Decimal
	MinInvestment         decimal.Decimal
	MaxInvestment         *decimal.Decimal
	SharePrice            decimal.Decimal
	TotalShares           int64
	ManagementFee         decimal.Decimal
	ExpectedReturn        *decimal.Decimal
	RiskLevel             RiskLevel
	InvestmentType        InvestmentType
	DistributionFrequency DistributionFrequency
	StartDate             *time.Time
	FundingDeadline       *time.Time
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	PoolId                ulid.ULID
	ActorId               ulid.ULID
	Name                  *string
	Description           *string
	Location              *string
	TargetAmount          *decimal.Decimal
	MinInvestment         *decimal.Decimal
	MaxInvestment         *decimal.Decimal
	SharePrice            *decimal.Decimal
	TotalShares           *int64
	ManagementFee         *decimal.Decimal
	ExpectedReturn        *decimal.Decimal
	RiskLevel             *RiskLevel
	InvestmentType        *InvestmentType
	DistributionFrequency *DistributionFrequency
	StartDate             *time.Time
	FundingDeadline       *time.Time
	Status                *Status
	Reason                string
}

func (in *UpdateInput) hasFieldEdits() bool {
	return in.Name != nil || in.Description != nil || in.Location != nil ||
		in.TargetAmount != nil || in.MinInvestment != nil || in.MaxInvestment != nil ||
		in.SharePrice != nil || in.TotalShares != nil || in.ManagementFee != nil ||
		in.ExpectedReturn != nil || in.RiskLevel != nil || in.InvestmentType != nil ||
		in.DistributionFrequency != nil || in.StartDate != nil || in.FundingDeadline != nil
}

type Service struct {
	Repository Repository
	Transactor shared.Transactor
	Notifier   Notifier
	Clock      shared.Clock
}

func NewService(repo Repository, tx shared.Transactor, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		Repository: repo,
		Transactor: tx,
		Notifier:   notifier,
	}
}

func (s *Service) CreatePool(ctx context.Context, in *CreateInput) (*Pool, error) {
	if in.MaxInvestment != nil && in.MaxInvestment.LessThan(in.MinInvestment) {
		return nil, appErrors.NewValidationError("maxInvestment", "maxInvestment must be greater than or equal to minInvestment")
	}

	now := s.Clock.Now()
	id := pkg.NewID()
	p := &Pool{
		Id:                    id,
		Name:                  strings.TrimSpace(in.Name),
		Slug:                  pkg.UniqueSlug(in.Name, id),
		Description:           strings.TrimSpace(in.Description),
		Location:              strings.TrimSpace(in.Location),
		ManagerId:             in.ManagerId,
		TargetAmount:          pkg.RoundMoney(in.TargetAmount),
		RaisedAmount:          decimal.Zero,
		MinInvestment:         pkg.RoundMoney(in.MinInvestment),
		MaxInvestment:         roundPtr(in.MaxInvestment),
		SharePrice:            pkg.RoundMoney(in.SharePrice),
		TotalShares:           in.TotalShares,
		ManagementFee:         in.ManagementFee,
		ExpectedReturn:        in.ExpectedReturn,
		RiskLevel:             in.RiskLevel,
		InvestmentType:        in.InvestmentType,
		DistributionFrequency: in.DistributionFrequency,
		Status:                StatusDraft,
		StartDate:             in.StartDate,
		FundingDeadline:       in.FundingDeadline,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if p.RiskLevel == "" {
		p.RiskLevel = RiskModerate
	}
	if p.InvestmentType == "" {
		p.InvestmentType = InvestmentEquity
	}
	if p.DistributionFrequency == "" {
		p.DistributionFrequency = FrequencyQuarterly
	}

	if err := s.Repository.Create(ctx, p); err != nil {
		if shared.IsUniqueConstraintError(err) {
			return nil, appErrors.NewConflictError("pool slug").WithError(err)
		}
		return nil, err
	}

	logger.Info().
		Str("pool_id", p.Id.String()).
		Str("manager_id", p.ManagerId.String()).
		Str("target_amount", p.TargetAmount.String()).
		Msg("pool created")

	return p, nil
}

func (s *Service) GetPool(ctx context.Context, id ulid.ULID) (*Details, error) {
	p, err := s.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Repository.GetStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewDetails(p, stats), nil
}

func (s *Service) ListPools(ctx context.Context, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Pool, int64, error) {
	if filters == nil {
		filters = &ListFilters{}
	}
	if filters.SortBy == "" {
		filters.SortBy = SortCreatedAt
		filters.SortDesc = true
	}
	return s.Repository.List(ctx, filters, pkg.NormalizePagination(pagination))
}

// UpdatePool applies field edits and an optional status change in one guarded write.
func (s *Service) UpdatePool(ctx context.Context, in *UpdateInput) (*Pool, error) {
	var (
		result *Pool
		event  *Event
	)

	err := shared.RetryOnConflict(ctx, shared.DefaultConflictRetries, func(ctx context.Context) error {
		event = nil
		return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			p, err := s.Repository.GetByID(ctx, in.PoolId)
			if err != nil {
				return err
			}
			if !p.IsManagedBy(in.ActorId) {
				return appErrors.ErrForbidden.WithMessage("Only the pool manager can update this pool")
			}

			expected := p.Version
			now := s.Clock.Now()

			if in.hasFieldEdits() {
				if err := applyFieldEdits(p, in); err != nil {
					return err
				}
				p.UpdatedAt = now
			}

			if in.Status != nil && *in.Status != p.Status {
				action, err := ActionForStatus(p.Status, *in.Status)
				if err != nil {
					return err
				}
				if event, err = p.Apply(action, in.Reason, now); err != nil {
					return err
				}
				event.ActorId = in.ActorId
			} else if p.Status == StatusSeeking && p.RaisedAmount.IsPositive() && p.RaisedAmount.Equal(p.TargetAmount) {
				// target lowered onto the raised amount
				if event, err = p.Apply(ActionFund, "", now); err != nil {
					return err
				}
				event.ActorId = in.ActorId
			}

			if err := Persist(ctx, s.Repository, p, expected, event); err != nil {
				return err
			}
			if event != nil && event.Action == ActionCancel {
				if _, err := s.Repository.CreateRefundObligations(ctx, p.Id, *p.CancelReason, now); err != nil {
					return err
				}
			}
			result = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.Notifier.Notify(ctx, NotificationFor(result, event, true))
	}
	return result, nil
}

// Transition runs a single lifecycle action on behalf of the pool manager.
func (s *Service) Transition(ctx context.Context, poolID, actorID ulid.ULID, action Action, reason string, notifyInvestors bool) (*Pool, error) {
	var (
		result *Pool
		event  *Event
	)

	err := shared.RetryOnConflict(ctx, shared.DefaultConflictRetries, func(ctx context.Context) error {
		return s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			p, err := s.Repository.GetByID(ctx, poolID)
			if err != nil {
				return err
			}
			if !p.IsManagedBy(actorID) {
				return appErrors.ErrForbidden.WithMessage("Only the pool manager can change the pool status")
			}

			expected := p.Version
			now := s.Clock.Now()
			if event, err = p.Apply(action, reason, now); err != nil {
				return err
			}
			event.ActorId = actorID

			if err := Persist(ctx, s.Repository, p, expected, event); err != nil {
				return err
			}
			if action == ActionCancel {
				n, err := s.Repository.CreateRefundObligations(ctx, p.Id, *p.CancelReason, now)
				if err != nil {
					return err
				}
				logger.Info().
					Str("pool_id", p.Id.String()).
					Int("refund_obligations", n).
					Msg("pool cancelled")
			}
			result = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, NotificationFor(result, event, notifyInvestors))
	return result, nil
}

func (s *Service) CancelPool(ctx context.Context, poolID, actorID ulid.ULID, reason string, notifyInvestors bool) (*Pool, error) {
	return s.Transition(ctx, poolID, actorID, ActionCancel, reason, notifyInvestors)
}

func (s *Service) ListEvents(ctx context.Context, poolID ulid.ULID) ([]*Event, error) {
	if _, err := s.Repository.GetByID(ctx, poolID); err != nil {
		return nil, err
	}
	return s.Repository.ListEvents(ctx, poolID)
}

func (s *Service) ListRefundObligations(ctx context.Context, poolID, actorID ulid.ULID) ([]*RefundObligation, error) {
	p, err := s.Repository.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !p.IsManagedBy(actorID) {
		return nil, appErrors.ErrForbidden.WithMessage("Only the pool manager can view refund obligations")
	}
	return s.Repository.ListRefundObligations(ctx, poolID)
}

// Persist writes p under the version guard and appends events to its history.
// It must run inside the caller's transaction.
func Persist(ctx context.Context, repo Repository, p *Pool, expectedVersion int64, events ...*Event) error {
	if err := repo.UpdateGuarded(ctx, p, expectedVersion); err != nil {
		if appErrors.HasCode(err, appErrors.ErrConcurrencyConflict.Code) {
			metrics.RecordConcurrencyConflict("pool_update")
		}
		return err
	}
	for _, e := range events {
		if e == nil {
			continue
		}
		if err := repo.CreateEvent(ctx, e); err != nil {
			return err
		}
		metrics.RecordPoolTransition(string(e.FromStatus), string(e.ToStatus))
		logger.Info().
			Str("pool_id", e.PoolId.String()).
			Str("from", string(e.FromStatus)).
			Str("to", string(e.ToStatus)).
			Str("action", string(e.Action)).
			Msg("pool status changed")
	}
	return nil
}

func applyFieldEdits(p *Pool, in *UpdateInput) error {
	if p.Status != StatusDraft && p.Status != StatusSeeking {
		return appErrors.ErrInvalidTransition.
			WithMessage("Pool fields can only be edited while the pool is draft or seeking").
			WithDetails(map[string]interface{}{"currentStatus": string(p.Status)})
	}
	if p.Status != StatusDraft && (in.SharePrice != nil || in.TotalShares != nil) {
		return appErrors.ErrInvalidTransition.
			WithMessage("sharePrice and totalShares can only be changed while the pool is draft").
			WithDetails(map[string]interface{}{"currentStatus": string(p.Status)})
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Location != nil {
		p.Location = strings.TrimSpace(*in.Location)
	}
	if in.TargetAmount != nil {
		p.TargetAmount = pkg.RoundMoney(*in.TargetAmount)
	}
	if in.MinInvestment != nil {
		p.MinInvestment = pkg.RoundMoney(*in.MinInvestment)
	}
	if in.MaxInvestment != nil {
		p.MaxInvestment = roundPtr(in.MaxInvestment)
	}
	if in.SharePrice != nil {
		p.SharePrice = pkg.RoundMoney(*in.SharePrice)
	}
	if in.TotalShares != nil {
		p.TotalShares = *in.TotalShares
	}
	if in.ManagementFee != nil {
		p.ManagementFee = *in.ManagementFee
	}
	if in.ExpectedReturn != nil {
		p.ExpectedReturn = in.ExpectedReturn
	}
	if in.RiskLevel != nil {
		p.RiskLevel = *in.RiskLevel
	}
	if in.InvestmentType != nil {
		p.InvestmentType = *in.InvestmentType
	}
	if in.DistributionFrequency != nil {
		p.DistributionFrequency = *in.DistributionFrequency
	}
	if in.StartDate != nil {
		p.StartDate = in.StartDate
	}
	if in.FundingDeadline != nil {
		p.FundingDeadline = in.FundingDeadline
	}

	if p.MaxInvestment != nil && p.MaxInvestment.LessThan(p.MinInvestment) {
		return appErrors.NewValidationError("maxInvestment", "maxInvestment must be greater than or equal to minInvestment")
	}
	if p.TargetAmount.LessThan(p.RaisedAmount) {
		return appErrors.NewValidationError("targetAmount", "targetAmount cannot be lower than the amount already raised")
	}
	return nil
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	rounded := pkg.RoundMoney(*d)
	return &rounded
}
