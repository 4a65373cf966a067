package dto

// PointsBalanceResponse is returned by GET /v1/customers/{id}/points.
type PointsBalanceResponse struct {
	CustomerID string `json:"customer_id"`
	Balance    int    `json:"balance"`
}

// PointsTransactionResponse is one loyalty ledger entry.
type PointsTransactionResponse struct {
	ReferenceID   string  `json:"transaction_id"`
	Type          string  `json:"type"`
	Points        int     `json:"points"`
	BalanceBefore int     `json:"balance_before"`
	BalanceAfter  int     `json:"balance_after"`
	Description   string  `json:"description"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type PointsHistoryResponse struct {
	Data  []PointsTransactionResponse `json:"data"`
	Total int64                       `json:"total"`
	Page  int                         `json:"page"`
	Limit int                         `json:"limit"`
}

// PointsHistoryFilter is bound from the query string.
type PointsHistoryFilter struct {
	Page  int `form:"page,default=1"   validate:"min=1"`
	Limit int `form:"limit,default=50" validate:"min=1,max=200"`
}
