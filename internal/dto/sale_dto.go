package dto

import "github.com/shopspring/decimal"

// SaleItemRequest is one line of a sale request.
type SaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateSaleRequest is the body of POST /v1/sales.
type CreateSaleRequest struct {
	Items          []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string            `json:"payment_method" validate:"required"`
	CustomerID     *string           `json:"customer_id" validate:"omitempty,uuid"`
	PointsToRedeem int               `json:"points_to_redeem" validate:"min=0"`
}

// VoidSaleRequest is the body of DELETE /v1/sales/{id}.
type VoidSaleRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BatchUsedResponse reports one batch a line item was filled from.
type BatchUsedResponse struct {
	BatchID          string          `json:"batch_id"`
	QuantityDeducted int             `json:"quantity_deducted"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	ExpiryDate       *string         `json:"expiry_date"`
}

// SaleItemResponse is one sold line in a sale response.
type SaleItemResponse struct {
	ProductID   string              `json:"product_id"`
	Product     string              `json:"product"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	BatchesUsed []BatchUsedResponse `json:"batches_used"`
}

// SaleResponse is returned on creation and lookup.
type SaleResponse struct {
	ID                    string             `json:"id"`
	ReceiptNumber         int                `json:"receipt_number"`
	CashierID             string             `json:"cashier_id"`
	CustomerID            *string            `json:"customer_id"`
	Items                 []SaleItemResponse `json:"items"`
	Subtotal              decimal.Decimal    `json:"subtotal"`
	PromoDiscount         decimal.Decimal    `json:"promo_discount"`
	PointsRedeemed        int                `json:"points_redeemed"`
	PointsDiscount        decimal.Decimal    `json:"points_discount"`
	SubtotalAfterDiscount decimal.Decimal    `json:"subtotal_after_discount"`
	TotalAmount           decimal.Decimal    `json:"total_amount"`
	PaymentMethod         string             `json:"payment_method"`
	Status                string             `json:"status"`
	LoyaltyPointsEarned   int                `json:"loyalty_points_earned"`
	LoyaltyPointsUsed     int                `json:"loyalty_points_used"`
	IsVoided              bool               `json:"is_voided"`
	CreatedAt             string             `json:"created_at"`
}

// SaleFilter is bound from the query string of GET /v1/sales.
type SaleFilter struct {
	Date   string `form:"date"`                     // YYYY-MM-DD; empty = today
	Status string `form:"status,default=completed"` // completed | voided | all
	Page   int    `form:"page,default=1"   validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
