package distribution

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeDividend        Type = "dividend"
	TypeInterest        Type = "interest"
	TypePrincipalReturn Type = "principal_return"
	TypeSaleProceeds    Type = "sale_proceeds"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDividend, TypeInterest, TypePrincipalReturn, TypeSaleProceeds:
		return true
	}
	return false
}

// Status is shared by distributions and their payouts.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Distribution struct {
	Id                  ulid.ULID       `json:"id"`
	PoolId              ulid.ULID       `json:"poolId"`
	Type                Type            `json:"type"`
	Period              string          `json:"period,omitempty"`
	GrossAmount         decimal.Decimal `json:"grossAmount"`
	Fees                decimal.Decimal `json:"fees"`
	Taxes               decimal.Decimal `json:"taxes"`
	NetAmount           decimal.Decimal `json:"netAmount"`
	DistributedAmount   decimal.Decimal `json:"distributedAmount"`
	RetainedAmount      decimal.Decimal `json:"retainedAmount"`
	Status              Status          `json:"status"`
	Notes               *string         `json:"notes,omitempty"`
	FailureReason       *string         `json:"failureReason,omitempty"`
	ProcessingStartedAt *time.Time      `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	CreatedBy           ulid.ULID       `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	Payouts             []*Payout       `json:"payouts,omitempty"`
}

// IsOpen reports whether the distribution still has payouts to clear.
func (d *Distribution) IsOpen() bool {
	return d.Status != StatusCompleted
}

type Payout struct {
	Id                 ulid.ULID       `json:"id"`
	DistributionId     ulid.ULID       `json:"distributionId"`
	PoolId             ulid.ULID       `json:"poolId"`
	InvestorId         ulid.ULID       `json:"investorId"`
	UserId             ulid.ULID       `json:"userId"`
	SharesSnapshot     int64           `json:"sharesSnapshot"`
	PercentageSnapshot decimal.Decimal `json:"percentageSnapshot"`
	Amount             decimal.Decimal `json:"amount"`
	Status             Status          `json:"status"`
	Attempts           int             `json:"attempts"`
	ExternalReference  *string         `json:"externalReference,omitempty"`
	LastError          *string         `json:"lastError,omitempty"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (p *Payout) IsCompleted() bool {
	return p.Status == StatusCompleted
}
