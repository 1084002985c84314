package distribution

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// PayoutInstruction asks the payment provider to move Amount to UserId.
// Providers must treat IdempotencyKey as the dedupe key, so a retried payout
// is never paid twice.
type PayoutInstruction struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	PayoutId       ulid.ULID       `json:"payoutId"`
	DistributionId ulid.ULID       `json:"distributionId"`
	PoolId         ulid.ULID       `json:"poolId"`
	UserId         ulid.ULID       `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	Type           Type            `json:"type"`
}

type Disbursement struct {
	Reference string `json:"reference"`
}

type Disburser interface {
	Disburse(ctx context.Context, in PayoutInstruction) (*Disbursement, error)
}
