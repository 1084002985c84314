package routes

import (
	"strings"

	"Poolfund/internal/contracts"
	"Poolfund/internal/domain/pool"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) CreatePool(c *gin.Context) {
	var body contracts.CreatePoolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	p, err := h.PoolService.CreatePool(c.Request.Context(), &pool.CreateInput{
		ManagerId:             userID,
		Name:                  body.Name,
		Description:           body.Description,
		Location:              body.Location,
		TargetAmount:          body.TargetAmount,
		MinInvestment:         body.MinInvestment,
		MaxInvestment:         body.MaxInvestment,
		SharePrice:            body.SharePrice,
		TotalShares:           body.TotalShares,
		ManagementFee:         body.ManagementFee,
		ExpectedReturn:        body.ExpectedReturn,
		RiskLevel:             pool.RiskLevel(body.RiskLevel),
		InvestmentType:        pool.InvestmentType(body.InvestmentType),
		DistributionFrequency: pool.DistributionFrequency(body.DistributionFrequency),
		StartDate:             body.StartDate,
		FundingDeadline:       body.FundingDeadline,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondCreated(c, p)
}

func (h *Handler) ListPools(c *gin.Context) {
	var query contracts.ListPoolsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.bindError(c, err)
		return
	}

	filters := &pool.ListFilters{
		Location: query.Location,
		Search:   query.Search,
		SortBy:   pool.SortField(query.SortBy),
		SortDesc: strings.EqualFold(query.SortOrder, "desc"),
	}
	if filters.SortBy == "" {
		// newest first unless asked otherwise
		filters.SortBy = pool.SortCreatedAt
		filters.SortDesc = !strings.EqualFold(query.SortOrder, "asc")
	}
	if query.Status != "" {
		status := pool.Status(query.Status)
		filters.Status = &status
	}
	if query.RiskLevel != "" {
		risk := pool.RiskLevel(query.RiskLevel)
		filters.RiskLevel = &risk
	}
	if query.InvestmentType != "" {
		kind := pool.InvestmentType(query.InvestmentType)
		filters.InvestmentType = &kind
	}
	if query.MinInvestment != "" {
		if v, err := decimal.NewFromString(query.MinInvestment); err == nil {
			filters.MinInvestment = &v
		}
	}
	if query.MaxInvestment != "" {
		if v, err := decimal.NewFromString(query.MaxInvestment); err == nil {
			filters.MaxInvestment = &v
		}
	}

	pagination := h.parsePagination(query.Page, query.Limit)
	pools, total, err := h.PoolService.ListPools(c.Request.Context(), filters, pagination)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondPage(c, pools, pagination, total)
}

func (h *Handler) GetPool(c *gin.Context) {
	id, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	details, err := h.PoolService.GetPool(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, details)
}

func (h *Handler) UpdatePool(c *gin.Context) {
	id, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body contracts.UpdatePoolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	in := &pool.UpdateInput{
		PoolId:          id,
		ActorId:         userID,
		Name:            body.Name,
		Description:     body.Description,
		Location:        body.Location,
		TargetAmount:    body.TargetAmount,
		MinInvestment:   body.MinInvestment,
		MaxInvestment:   body.MaxInvestment,
		SharePrice:      body.SharePrice,
		TotalShares:     body.TotalShares,
		ManagementFee:   body.ManagementFee,
		ExpectedReturn:  body.ExpectedReturn,
		StartDate:       body.StartDate,
		FundingDeadline: body.FundingDeadline,
		Reason:          body.Reason,
	}
	if body.RiskLevel != nil {
		risk := pool.RiskLevel(*body.RiskLevel)
		in.RiskLevel = &risk
	}
	if body.InvestmentType != nil {
		kind := pool.InvestmentType(*body.InvestmentType)
		in.InvestmentType = &kind
	}
	if body.DistributionFrequency != nil {
		freq := pool.DistributionFrequency(*body.DistributionFrequency)
		in.DistributionFrequency = &freq
	}
	if body.Status != nil {
		status := pool.Status(*body.Status)
		in.Status = &status
	}

	p, err := h.PoolService.UpdatePool(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, p)
}

// CancelPool handles DELETE /pools/:id. Investors are notified unless notifyInvestors is false.
func (h *Handler) CancelPool(c *gin.Context) {
	id, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body contracts.CancelPoolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	notify := body.NotifyInvestors == nil || *body.NotifyInvestors
	p, err := h.PoolService.CancelPool(c.Request.Context(), id, userID, body.Reason, notify)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, p)
}

func (h *Handler) ListPoolEvents(c *gin.Context) {
	id, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	events, err := h.PoolService.ListEvents(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, events)
}

func (h *Handler) ListRefundObligations(c *gin.Context) {
	id, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	refunds, err := h.PoolService.ListRefundObligations(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, refunds)
}
