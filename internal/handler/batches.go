package handler

import (
	"net/http"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/middleware"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BatchesHandler struct{ svc service.BatchService }

func NewBatchesHandler(svc service.BatchService) *BatchesHandler {
	return &BatchesHandler{svc: svc}
}

// CreateBatch godoc
// @Summary      Receive a stock batch
// @Description  Records a stock receipt with its own cost and expiry. Future-dated receipts stay pending until their date arrives.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateBatchRequest true "Batch detail"
// @Success      201  {object} dto.BatchResponse
// @Failure      400  {object} apierror.APIError
// @Router       /v1/batches [post]
func (h *BatchesHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	batch, err := h.svc.CreateBatch(c.Request.Context(), req, claims.Username)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batchToResponse(batch))
}

// GetBatch godoc
// @Summary      Get a batch
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Batch UUID"
// @Success      200 {object} dto.BatchResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/batches/{id} [get]
func (h *BatchesHandler) GetBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	batch, err := h.svc.GetBatch(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchToResponse(batch))
}

// ListBatches godoc
// @Summary      List batches
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        product_id query string false "Filter by product"
// @Param        status     query string false "pending | active | depleted | expired | all"
// @Param        page       query int    false "Page (default 1)"
// @Param        limit      query int    false "Rows per page (default 50)"
// @Success      200 {object} dto.BatchListResponse
// @Failure      400 {object} apierror.APIError
// @Router       /v1/batches [get]
func (h *BatchesHandler) ListBatches(c *gin.Context) {
	var filter dto.BatchFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	batches, total, err := h.svc.ListBatches(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	items := make([]dto.BatchResponse, len(batches))
	for i := range batches {
		items[i] = batchToResponse(&batches[i])
	}
	c.JSON(http.StatusOK, dto.BatchListResponse{
		Data: items, Total: total, Page: filter.Page, Limit: filter.Limit,
	})
}

// ListUsage godoc
// @Summary      Batch usage history
// @Description  Returns the append-only quantity ledger of one batch.
// @Tags         batches
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Batch UUID"
// @Success      200 {array} dto.BatchUsageResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/batches/{id}/usage [get]
func (h *BatchesHandler) ListUsage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	usage, err := h.svc.ListUsage(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	items := make([]dto.BatchUsageResponse, len(usage))
	for i, u := range usage {
		items[i] = dto.BatchUsageResponse{
			QuantityUsed:   u.QuantityUsed,
			RemainingAfter: u.RemainingAfter,
			AdjustmentType: string(u.AdjustmentType),
			AdjustedBy:     u.AdjustedBy,
			Source:         u.Source,
			Notes:          u.Notes,
			Timestamp:      u.CreatedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, items)
}

// AdjustBatch godoc
// @Summary      Adjust a batch
// @Description  Manual correction (adds stock back) or damage write-off (removes stock) on a single batch.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                 true "Batch UUID"
// @Param        body body dto.AdjustBatchRequest true "Adjustment detail"
// @Success      200  {object} dto.BatchResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/batches/{id}/adjust [post]
func (h *BatchesHandler) AdjustBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.AdjustBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	batch, err := h.svc.Adjust(c.Request.Context(), id, req, claims.Username)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchToResponse(batch))
}

func batchToResponse(b *model.Batch) dto.BatchResponse {
	var expiry *string
	if b.ExpiryDate != nil {
		s := b.ExpiryDate.Format("2006-01-02")
		expiry = &s
	}
	return dto.BatchResponse{
		ID:                b.ID.String(),
		ProductID:         b.ProductID.String(),
		BatchNumber:       b.BatchNumber,
		QuantityReceived:  b.QuantityReceived,
		QuantityRemaining: b.QuantityRemaining,
		CostPrice:         b.CostPrice,
		ExpiryDate:        expiry,
		DateReceived:      b.DateReceived.Format("2006-01-02"),
		Status:            string(b.Status),
	}
}
