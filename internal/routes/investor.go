package routes

import (
	"Poolfund/internal/contracts"
	"Poolfund/internal/domain/investor"

	"github.com/gin-gonic/gin"
)

func (h *Handler) InvestInPool(c *gin.Context) {
	poolID, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body contracts.InvestInPoolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	receipt, err := h.InvestorService.Invest(c.Request.Context(), &investor.InvestInput{
		PoolId:          poolID,
		UserId:          userID,
		Shares:          body.Shares,
		AgreementSigned: body.AgreementSigned,
		PaymentMethodId: body.PaymentMethodId,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondCreated(c, receipt)
}

// CancelInvestment handles DELETE /investors/:investorId. The body is optional.
func (h *Handler) CancelInvestment(c *gin.Context) {
	investorID, err := h.parseIDParam(c, "investorId")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body contracts.CancelInvestmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.bindError(c, err)
			return
		}
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	entry, err := h.InvestorService.CancelInvestment(c.Request.Context(), investorID, userID, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, entry)
}

func (h *Handler) ListPoolInvestors(c *gin.Context) {
	poolID, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var query contracts.ListInvestorsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var filters *investor.ListFilters
	if query.Status != "" {
		status := investor.Status(query.Status)
		filters = &investor.ListFilters{Status: &status}
	}

	pagination := h.parsePagination(query.Page, query.Limit)
	entries, total, err := h.InvestorService.ListPoolInvestors(c.Request.Context(), poolID, userID, filters, pagination)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondPage(c, entries, pagination, total)
}

func (h *Handler) ListMyInvestments(c *gin.Context) {
	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var query contracts.ListInvestorsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.bindError(c, err)
		return
	}

	pagination := h.parsePagination(query.Page, query.Limit)
	entries, total, err := h.InvestorService.ListUserInvestments(c.Request.Context(), userID, pagination)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondPage(c, entries, pagination, total)
}
