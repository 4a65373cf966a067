package dto

import "github.com/shopspring/decimal"

// CreateBatchRequest is the body of POST /v1/batches.
// Dates are ISO strings (YYYY-MM-DD); DateReceived empty = received now.
type CreateBatchRequest struct {
	ProductID        string          `json:"product_id" validate:"required,uuid"`
	QuantityReceived int             `json:"quantity_received" validate:"required,gt=0"`
	CostPrice        decimal.Decimal `json:"cost_price" validate:"required,gt=0"`
	ExpiryDate       string          `json:"expiry_date"`
	DateReceived     string          `json:"date_received"`
	Notes            string          `json:"notes"`
}

// AdjustBatchRequest is the body of POST /v1/batches/{id}/adjust — manual
// corrections and damage write-offs.
type AdjustBatchRequest struct {
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	AdjustmentType string `json:"adjustment_type" validate:"required,oneof=correction damage"`
	Notes          string `json:"notes" validate:"required"`
}

// BatchFilter is bound from the query string of GET /v1/batches.
type BatchFilter struct {
	ProductID string `form:"product_id"`
	Status    string `form:"status"` // pending | active | depleted | expired | all
	Page      int    `form:"page,default=1"   validate:"min=1"`
	Limit     int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// BatchResponse is the public shape of a batch.
type BatchResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	BatchNumber       int             `json:"batch_number"`
	QuantityReceived  int             `json:"quantity_received"`
	QuantityRemaining int             `json:"quantity_remaining"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	ExpiryDate        *string         `json:"expiry_date"`
	DateReceived      string          `json:"date_received"`
	Status            string          `json:"status"`
}

type BatchListResponse struct {
	Data  []BatchResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// BatchUsageResponse is one append-only usage history entry.
type BatchUsageResponse struct {
	QuantityUsed   int    `json:"quantity_used"`
	RemainingAfter int    `json:"remaining_after"`
	AdjustmentType string `json:"adjustment_type"`
	AdjustedBy     string `json:"adjusted_by"`
	Source         string `json:"source"`
	Notes          string `json:"notes"`
	Timestamp      string `json:"timestamp"`
}
