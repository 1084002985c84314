package pool

import (
	"context"
	"time"

	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type SortField string

const (
	SortCreatedAt      SortField = "createdAt"
	SortTargetAmount   SortField = "targetAmount"
	SortExpectedReturn SortField = "expectedReturn"
	SortRaisedAmount   SortField = "raisedAmount"
)

type ListFilters struct {
	Status         *Status
	RiskLevel      *RiskLevel
	InvestmentType *InvestmentType
	// MinInvestment keeps pools whose minimum is at least this amount.
	MinInvestment *decimal.Decimal
	// MaxInvestment keeps pools whose minimum ticket fits within this amount.
	MaxInvestment *decimal.Decimal
	Location      string
	Search        string
	ManagerId     *ulid.ULID
	SortBy        SortField
	SortDesc      bool
}

type Repository interface {
	Create(ctx context.Context, p *Pool) error
	GetByID(ctx context.Context, id ulid.ULID) (*Pool, error)
	List(ctx context.Context, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Pool, int64, error)
	// UpdateGuarded writes p only if the stored version still equals expectedVersion,
	// then sets p.Version to expectedVersion+1. A lost race yields CONCURRENCY_CONFLICT.
	UpdateGuarded(ctx context.Context, p *Pool, expectedVersion int64) error
	GetStats(ctx context.Context, id ulid.ULID) (*Stats, error)
	CreateEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, poolID ulid.ULID) ([]*Event, error)
	CreateRefundObligation(ctx context.Context, r *RefundObligation) error
	// CreateRefundObligations records one obligation per active investor of the pool.
	CreateRefundObligations(ctx context.Context, poolID ulid.ULID, reason string, at time.Time) (int, error)
	ListRefundObligations(ctx context.Context, poolID ulid.ULID) ([]*RefundObligation, error)
}
