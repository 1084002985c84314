package routes

import (
	"context"

	"Poolfund/internal/contracts"
	"Poolfund/internal/domain/distribution"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateDistribution(c *gin.Context) {
	poolID, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body contracts.CreateDistributionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	d, err := h.DistributionService.Create(c.Request.Context(), &distribution.CreateInput{
		PoolId:      poolID,
		ActorId:     userID,
		Type:        distribution.Type(body.Type),
		Period:      body.Period,
		GrossAmount: body.GrossAmount,
		Fees:        body.Fees,
		Taxes:       body.Taxes,
		Notes:       body.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondCreated(c, d)
}

func (h *Handler) ListDistributions(c *gin.Context) {
	poolID, err := h.parseIDParam(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var query contracts.ListDistributionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.bindError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var filters *distribution.ListFilters
	if query.Status != "" {
		status := distribution.Status(query.Status)
		filters = &distribution.ListFilters{Status: &status}
	}

	pagination := h.parsePagination(query.Page, query.Limit)
	items, total, err := h.DistributionService.ListByPool(c.Request.Context(), poolID, userID, filters, pagination)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondPage(c, items, pagination, total)
}

func (h *Handler) GetDistribution(c *gin.Context) {
	id, err := h.parseIDParam(c, "distributionId")
	if err != nil {
		h.respondError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	d, err := h.DistributionService.Get(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, d)
}

// ProcessDistribution runs the payout job synchronously. The job keeps going if
// the client disconnects; a later call or the sweeper picks up anything left.
func (h *Handler) ProcessDistribution(c *gin.Context) {
	id, err := h.parseIDParam(c, "distributionId")
	if err != nil {
		h.respondError(c, err)
		return
	}

	userID, err := h.GetUserIDFromContext(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	d, err := h.DistributionService.Process(ctx, id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, d)
}
