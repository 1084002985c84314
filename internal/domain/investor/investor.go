package investor

import (
	"time"

	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// PercentagePlaces is the precision of PercentageOwned. Values are truncated,
// so the sum across a pool never exceeds 100.
const PercentagePlaces = 4

// Investor is one user's stake in one pool. A user holds at most one entry per pool.
type Investor struct {
	Id               ulid.ULID       `json:"id"`
	PoolId           ulid.ULID       `json:"poolId"`
	UserId           ulid.ULID       `json:"userId"`
	InvestmentAmount decimal.Decimal `json:"investmentAmount"`
	SharesOwned      int64           `json:"sharesOwned"`
	// PercentageOwned is derived from SharesOwned and the pool's TotalShares on read.
	PercentageOwned decimal.Decimal `json:"percentageOwned"`
	Status          Status          `json:"status"`
	PaymentMethodId *string         `json:"paymentMethodId,omitempty"`
	JoinedAt        time.Time       `json:"joinedAt"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	CancelReason    *string         `json:"cancelReason,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (i *Investor) IsActive() bool {
	return i.Status == StatusActive
}

// WithPercentage fills PercentageOwned for a pool of totalShares.
func (i *Investor) WithPercentage(totalShares int64) *Investor {
	i.PercentageOwned = PercentageOf(i.SharesOwned, totalShares)
	return i
}

func PercentageOf(shares, totalShares int64) decimal.Decimal {
	return pkg.Percentage(shares, totalShares, PercentagePlaces)
}
