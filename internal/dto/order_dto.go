package dto

import "github.com/shopspring/decimal"

// OrderItemRequest is one line of an order request.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest is the body of POST /v1/orders.
type CreateOrderRequest struct {
	CustomerID     string             `json:"customer_id" validate:"required,uuid"`
	Items          []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string             `json:"payment_method" validate:"required"`
	PointsToRedeem int                `json:"points_to_redeem" validate:"min=0"`
	DeliveryNotes  string             `json:"delivery_notes"`
}

// UpdateOrderStatusRequest is the body of PATCH /v1/orders/{id}/status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed processing on_the_way completed cancelled"`
	Notes  string `json:"notes"`
}

// CancelOrderRequest is the body of POST /v1/orders/{id}/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// PaymentCallbackRequest is the external payment-confirmation hook body.
type PaymentCallbackRequest struct {
	Status    string `json:"status" validate:"required,oneof=paid failed refunded"`
	Reference string `json:"reference" validate:"required"`
}

// OrderItemResponse is one ordered line in an order response.
type OrderItemResponse struct {
	ProductID   string              `json:"product_id"`
	Product     string              `json:"product"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	BatchesUsed []BatchUsedResponse `json:"batches_used"`
}

// StatusChangeResponse is one status history entry.
type StatusChangeResponse struct {
	Status    string `json:"status"`
	Actor     string `json:"actor"`
	Notes     string `json:"notes"`
	Timestamp string `json:"timestamp"`
}

// OrderResponse is returned on creation and lookup.
type OrderResponse struct {
	ID                    string                 `json:"id"`
	OrderNumber           int                    `json:"order_number"`
	CustomerID            string                 `json:"customer_id"`
	Items                 []OrderItemResponse    `json:"items"`
	OrderStatus           string                 `json:"order_status"`
	PaymentStatus         string                 `json:"payment_status"`
	PaymentMethod         string                 `json:"payment_method"`
	Subtotal              decimal.Decimal        `json:"subtotal"`
	PromoDiscount         decimal.Decimal        `json:"promo_discount"`
	PointsRedeemed        int                    `json:"points_redeemed"`
	PointsDiscount        decimal.Decimal        `json:"points_discount"`
	SubtotalAfterDiscount decimal.Decimal        `json:"subtotal_after_discount"`
	DeliveryFee           decimal.Decimal        `json:"delivery_fee"`
	ServiceFee            decimal.Decimal        `json:"service_fee"`
	TotalAmount           decimal.Decimal        `json:"total_amount"`
	LoyaltyPointsEarned   int                    `json:"loyalty_points_earned"`
	StatusHistory         []StatusChangeResponse `json:"status_history"`
	CancellationReason    *string                `json:"cancellation_reason,omitempty"`
	CreatedAt             string                 `json:"created_at"`
}

// OrderFilter is bound from the query string of GET /v1/orders.
type OrderFilter struct {
	CustomerID string `form:"customer_id"`
	Status     string `form:"status"` // order status or "all"
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type OrderListResponse struct {
	Data  []OrderResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
