package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row the ledger snapshots prices from. The stock
// columns are a projection derived from this product's batches: only the
// batch ledger writes them, and they are recomputed after every batch
// mutation.
type Product struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SKU          string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"index;not null"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	IsTaxable    bool            `gorm:"not null;default:true"`
	Active       bool            `gorm:"not null;default:true"`

	// ── Stock projection (derived from batches, never authored directly) ──
	TotalStock        int             `gorm:"not null;default:0"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"` // cost of the oldest active batch
	OldestBatchExpiry *time.Time
	NewestBatchExpiry *time.Time
	ExpiryAlert       bool `gorm:"not null;default:false"` // any active batch expires within the alert window

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockProjection is the derived summary the batch ledger writes onto the
// product row. Pure function of the product's current active batches.
type StockProjection struct {
	TotalStock        int
	CostPrice         decimal.Decimal
	OldestBatchExpiry *time.Time
	NewestBatchExpiry *time.Time
	ExpiryAlert       bool
}
