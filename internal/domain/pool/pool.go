package pool

import (
	"time"

	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

type InvestmentType string

const (
	InvestmentEquity InvestmentType = "equity"
	InvestmentDebt   InvestmentType = "debt"
	InvestmentHybrid InvestmentType = "hybrid"
)

type DistributionFrequency string

const (
	FrequencyMonthly   DistributionFrequency = "monthly"
	FrequencyQuarterly DistributionFrequency = "quarterly"
	FrequencyAnnually  DistributionFrequency = "annually"
)

type Pool struct {
	Id                       ulid.ULID             `json:"id"`
	Name                     string                `json:"name"`
	Slug                     string                `json:"slug"`
	Description              string                `json:"description,omitempty"`
	Location                 string                `json:"location,omitempty"`
	ManagerId                ulid.ULID             `json:"managerId"`
	TargetAmount             decimal.Decimal       `json:"targetAmount"`
	RaisedAmount             decimal.Decimal       `json:"raisedAmount"`
	MinInvestment            decimal.Decimal       `json:"minInvestment"`
	MaxInvestment            *decimal.Decimal      `json:"maxInvestment,omitempty"`
	SharePrice               decimal.Decimal       `json:"sharePrice"`
	TotalShares              int64                 `json:"totalShares"`
	ManagementFee            decimal.Decimal       `json:"managementFee"`
	ExpectedReturn           *decimal.Decimal      `json:"expectedReturn,omitempty"`
	RiskLevel                RiskLevel             `json:"riskLevel"`
	InvestmentType           InvestmentType        `json:"investmentType"`
	DistributionFrequency    DistributionFrequency `json:"distributionFrequency"`
	Status                   Status                `json:"status"`
	StartDate                *time.Time            `json:"startDate,omitempty"`
	FundingDeadline          *time.Time            `json:"fundingDeadline,omitempty"`
	ClosedEarly              bool                  `json:"closedEarly"`
	FinalDistributionCreated bool                  `json:"finalDistributionCreated"`
	CancelReason             *string               `json:"cancelReason,omitempty"`
	CancelledAt              *time.Time            `json:"cancelledAt,omitempty"`
	FundedAt                 *time.Time            `json:"fundedAt,omitempty"`
	CompletedAt              *time.Time            `json:"completedAt,omitempty"`
	Version                  int64                 `json:"version"`
	CreatedAt                time.Time             `json:"createdAt"`
	UpdatedAt                time.Time             `json:"updatedAt"`
}

// RemainingCapacity is the amount that can still be raised before the target.
func (p *Pool) RemainingCapacity() decimal.Decimal {
	remaining := p.TargetAmount.Sub(p.RaisedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// FundingProgress is raised/target in percent, truncated to two places.
func (p *Pool) FundingProgress() decimal.Decimal {
	if !p.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return p.RaisedAmount.Mul(decimal.NewFromInt(100)).
		DivRound(p.TargetAmount, 6).
		Truncate(pkg.MoneyPlaces)
}

func (p *Pool) IsManagedBy(userID ulid.ULID) bool {
	return p.ManagerId == userID
}

func (p *Pool) DeadlinePassed(now time.Time) bool {
	return p.FundingDeadline != nil && !now.Before(*p.FundingDeadline)
}

// Stats are read from the investor ledger, never stored on the pool.
type Stats struct {
	SharesSold    int64 `json:"sharesSold"`
	InvestorCount int64 `json:"investorCount"`
}

// Details is the read model returned for a single pool.
type Details struct {
	*Pool
	SharesSold      int64           `json:"sharesSold"`
	SharesAvailable int64           `json:"sharesAvailable"`
	InvestorCount   int64           `json:"investorCount"`
	FundingProgress decimal.Decimal `json:"fundingProgress"`
}

func NewDetails(p *Pool, stats *Stats) *Details {
	if stats == nil {
		stats = &Stats{}
	}
	available := p.TotalShares - stats.SharesSold
	if available < 0 {
		available = 0
	}
	return &Details{
		Pool:            p,
		SharesSold:      stats.SharesSold,
		SharesAvailable: available,
		InvestorCount:   stats.InvestorCount,
		FundingProgress: p.FundingProgress(),
	}
}

// Event is one entry of a pool's status history.
type Event struct {
	Id         ulid.ULID `json:"id"`
	PoolId     ulid.ULID `json:"poolId"`
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	Action     Action    `json:"action"`
	ActorId    ulid.ULID `json:"actorId"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type RefundStatus string

const RefundPending RefundStatus = "pending"

// RefundObligation records money owed back to an investor. Paying it out is
// handled outside this service.
type RefundObligation struct {
	Id         ulid.ULID       `json:"id"`
	PoolId     ulid.ULID       `json:"poolId"`
	InvestorId ulid.ULID       `json:"investorId"`
	UserId     ulid.ULID       `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	Status     RefundStatus    `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}
