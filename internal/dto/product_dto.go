package dto

import "github.com/shopspring/decimal"

// CreateProductRequest is the body of POST /v1/products. Stock fields are
// absent on purpose: stock only enters through batches.
type CreateProductRequest struct {
	SKU          string          `json:"sku" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	SellingPrice decimal.Decimal `json:"selling_price" validate:"required"`
	IsTaxable    bool            `json:"is_taxable"`
}

// ProductFilter is bound from the query string of GET /v1/products.
type ProductFilter struct {
	Name        string `form:"name"`
	SKU         string `form:"sku"`
	ExpiryAlert string `form:"expiry_alert"` // "true" filters to alerting products
	Page        int    `form:"page,default=1"   validate:"min=1"`
	Limit       int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ProductResponse exposes the catalog row plus its stock projection.
type ProductResponse struct {
	ID                string          `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	IsTaxable         bool            `json:"is_taxable"`
	TotalStock        int             `json:"total_stock"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	OldestBatchExpiry *string         `json:"oldest_batch_expiry"`
	NewestBatchExpiry *string         `json:"newest_batch_expiry"`
	ExpiryAlert       bool            `json:"expiry_alert"`
}

type ProductListResponse struct {
	Data  []ProductResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
