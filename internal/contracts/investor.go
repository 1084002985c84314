package contracts

type InvestInPoolRequest struct {
	Shares          int64   `json:"shares" binding:"required,min=1"`
	AgreementSigned bool    `json:"agreementSigned" binding:"accepted"`
	PaymentMethodId *string `json:"paymentMethodId" binding:"omitempty,max=100"`
}

type CancelInvestmentRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

type ListInvestorsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active cancelled"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=50"`
}
