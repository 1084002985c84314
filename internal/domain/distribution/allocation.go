package distribution

import (
	"sort"
	"time"

	"Poolfund/internal/domain/investor"
	appErrors "Poolfund/internal/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Holding is one investor's position at the moment a distribution is created.
type Holding struct {
	InvestorId ulid.ULID
	UserId     ulid.ULID
	Shares     int64
	JoinedAt   time.Time
}

type Allocation struct {
	Holding
	AmountCents int64
	Percentage  decimal.Decimal
}

type AllocationResult struct {
	Allocations        []Allocation
	DistributableCents int64
	RetainedCents      int64
}

// Allocate splits netCents across holdings pro rata to shares out of totalShares.
//
// Each holder gets floor(net × shares / totalShares). The sold portion of the pool
// is floor(net × soldShares / totalShares) and whatever cents the per-holder
// floors leave of it go to the largest holder, ties broken by earliest JoinedAt
// and then lowest investor id. The unsold portion is retained by the pool, so a
// fully subscribed pool pays out net exactly.
func Allocate(netCents, totalShares int64, holdings []Holding) (*AllocationResult, error) {
	if netCents < 0 {
		return nil, appErrors.NewValidationError("netAmount", "netAmount must not be negative")
	}
	if totalShares < 1 {
		return nil, appErrors.NewValidationError("totalShares", "pool has no shares to distribute against")
	}

	var sold int64
	for _, h := range holdings {
		if h.Shares < 0 {
			return nil, appErrors.NewValidationError("shares", "holding shares must not be negative")
		}
		sold += h.Shares
	}
	if sold > totalShares {
		return nil, appErrors.ErrInternalServer.WithDetails(map[string]interface{}{
			"sharesSold":  sold,
			"totalShares": totalShares,
		}).WithMessage("Ledger holds more shares than the pool issued")
	}

	result := &AllocationResult{
		Allocations:        make([]Allocation, len(holdings)),
		DistributableCents: mulDiv(netCents, sold, totalShares),
	}
	result.RetainedCents = netCents - result.DistributableCents

	var allocated int64
	for i, h := range holdings {
		amount := mulDiv(netCents, h.Shares, totalShares)
		result.Allocations[i] = Allocation{
			Holding:     h,
			AmountCents: amount,
			Percentage:  investor.PercentageOf(h.Shares, totalShares),
		}
		allocated += amount
	}

	if remainder := result.DistributableCents - allocated; remainder > 0 {
		result.Allocations[remainderRecipient(holdings)].AmountCents += remainder
	}
	return result, nil
}

// remainderRecipient returns the index of the largest holder.
func remainderRecipient(holdings []Holding) int {
	idx := make([]int, len(holdings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ha, hb := holdings[idx[a]], holdings[idx[b]]
		if ha.Shares != hb.Shares {
			return ha.Shares > hb.Shares
		}
		if !ha.JoinedAt.Equal(hb.JoinedAt) {
			return ha.JoinedAt.Before(hb.JoinedAt)
		}
		return ha.InvestorId.Compare(hb.InvestorId) < 0
	})
	return idx[0]
}

// mulDiv computes floor(a × b / c) for non-negative operands without overflowing int64.
func mulDiv(a, b, c int64) int64 {
	q, _ := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)).QuoRem(decimal.NewFromInt(c), 0)
	return q.IntPart()
}
