package contracts

import (
	"github.com/shopspring/decimal"
)

type CreateDistributionRequest struct {
	Type        string          `json:"type" binding:"required,oneof=dividend interest principal_return sale_proceeds"`
	Period      string          `json:"period" binding:"omitempty,max=50"`
	GrossAmount decimal.Decimal `json:"grossAmount" binding:"gt=0"`
	Fees        decimal.Decimal `json:"fees" binding:"gte=0"`
	Taxes       decimal.Decimal `json:"taxes" binding:"gte=0"`
	Notes       *string         `json:"notes" binding:"omitempty,max=1000"`
}

type ListDistributionsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending processing completed failed"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=50"`
}
