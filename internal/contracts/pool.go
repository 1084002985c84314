package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreatePoolRequest struct {
	Name                  string           `json:"name" binding:"required,min=3,max=200"`
	Description           string           `json:"description" binding:"omitempty,max=5000"`
	Location              string           `json:"location" binding:"omitempty,max=200"`
	TargetAmount          decimal.Decimal  `json:"targetAmount" binding:"gt=0"`
	MinInvestment         decimal.Decimal  `json:"minInvestment" binding:"gt=0"`
	MaxInvestment         *decimal.Decimal `json:"maxInvestment" binding:"omitempty,gt=0"`
	SharePrice            decimal.Decimal  `json:"sharePrice" binding:"gt=0"`
	TotalShares           int64            `json:"totalShares" binding:"required,min=1"`
	ManagementFee         decimal.Decimal  `json:"managementFee" binding:"gte=0,lte=10"`
	ExpectedReturn        *decimal.Decimal `json:"expectedReturn" binding:"omitempty,gte=0,lte=100"`
	RiskLevel             string           `json:"riskLevel" binding:"omitempty,oneof=low moderate high"`
	InvestmentType        string           `json:"investmentType" binding:"omitempty,oneof=equity debt hybrid"`
	DistributionFrequency string           `json:"distributionFrequency" binding:"omitempty,oneof=monthly quarterly annually"`
	StartDate             *time.Time       `json:"startDate" binding:"omitempty"`
	FundingDeadline       *time.Time       `json:"fundingDeadline" binding:"omitempty,future"`
}

// UpdatePoolRequest is a partial update. Status is checked for shape only; whether
// the move is allowed is decided by the pool lifecycle.
type UpdatePoolRequest struct {
	Name                  *string          `json:"name" binding:"omitempty,min=3,max=200"`
	Description           *string          `json:"description" binding:"omitempty,max=5000"`
	Location              *string          `json:"location" binding:"omitempty,max=200"`
	TargetAmount          *decimal.Decimal `json:"targetAmount" binding:"omitempty,gt=0"`
	MinInvestment         *decimal.Decimal `json:"minInvestment" binding:"omitempty,gt=0"`
	MaxInvestment         *decimal.Decimal `json:"maxInvestment" binding:"omitempty,gt=0"`
	SharePrice            *decimal.Decimal `json:"sharePrice" binding:"omitempty,gt=0"`
	TotalShares           *int64           `json:"totalShares" binding:"omitempty,min=1"`
	ManagementFee         *decimal.Decimal `json:"managementFee" binding:"omitempty,gte=0,lte=10"`
	ExpectedReturn        *decimal.Decimal `json:"expectedReturn" binding:"omitempty,gte=0,lte=100"`
	RiskLevel             *string          `json:"riskLevel" binding:"omitempty,oneof=low moderate high"`
	InvestmentType        *string          `json:"investmentType" binding:"omitempty,oneof=equity debt hybrid"`
	DistributionFrequency *string          `json:"distributionFrequency" binding:"omitempty,oneof=monthly quarterly annually"`
	StartDate             *time.Time       `json:"startDate" binding:"omitempty"`
	FundingDeadline       *time.Time       `json:"fundingDeadline" binding:"omitempty,future"`
	Status                *string          `json:"status" binding:"omitempty,oneof=draft seeking funded active distributing completed cancelled"`
	Reason                string           `json:"reason" binding:"omitempty,max=500"`
}

type CancelPoolRequest struct {
	Reason          string `json:"reason" binding:"required,min=3,max=500"`
	NotifyInvestors *bool  `json:"notifyInvestors"`
}

// ListPoolsQuery binds GET /pools. Money bounds arrive as strings and are parsed after validation.
type ListPoolsQuery struct {
	Status         string `form:"status" binding:"omitempty,oneof=draft seeking funded active distributing completed cancelled"`
	RiskLevel      string `form:"riskLevel" binding:"omitempty,oneof=low moderate high"`
	InvestmentType string `form:"investmentType" binding:"omitempty,oneof=equity debt hybrid"`
	MinInvestment  string `form:"minInvestment" binding:"omitempty,numeric"`
	MaxInvestment  string `form:"maxInvestment" binding:"omitempty,numeric"`
	Location       string `form:"location" binding:"omitempty,max=200"`
	Search         string `form:"search" binding:"omitempty,max=200"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=50"`
	SortBy         string `form:"sortBy" binding:"omitempty,oneof=createdAt targetAmount expectedReturn raisedAmount"`
	SortOrder      string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}
