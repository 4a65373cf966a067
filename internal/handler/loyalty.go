package handler

import (
	"net/http"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LoyaltyHandler struct{ svc service.LoyaltyService }

func NewLoyaltyHandler(svc service.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{svc: svc}
}

// GetBalance godoc
// @Summary      Loyalty points balance
// @Tags         loyalty
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Customer UUID"
// @Success      200 {object} dto.PointsBalanceResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/customers/{id}/points [get]
func (h *LoyaltyHandler) GetBalance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	balance, err := h.svc.Balance(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PointsBalanceResponse{CustomerID: id.String(), Balance: balance})
}

// GetHistory godoc
// @Summary      Loyalty points history
// @Description  Returns the customer's points ledger, newest first.
// @Tags         loyalty
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string true  "Customer UUID"
// @Param        page  query int    false "Page (default 1)"
// @Param        limit query int    false "Rows per page (default 50)"
// @Success      200 {object} dto.PointsHistoryResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/customers/{id}/points/history [get]
func (h *LoyaltyHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var filter dto.PointsHistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	txs, total, err := h.svc.History(c.Request.Context(), id, filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	items := make([]dto.PointsTransactionResponse, len(txs))
	for i, tx := range txs {
		var expiresAt *string
		if tx.ExpiresAt != nil {
			s := tx.ExpiresAt.Format(time.RFC3339)
			expiresAt = &s
		}
		items[i] = dto.PointsTransactionResponse{
			ReferenceID:   tx.ReferenceID,
			Type:          string(tx.Type),
			Points:        tx.Points,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			Description:   tx.Description,
			ExpiresAt:     expiresAt,
			CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, dto.PointsHistoryResponse{
		Data: items, Total: total, Page: filter.Page, Limit: filter.Limit,
	})
}
