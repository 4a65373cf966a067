package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus is the lifecycle state of a POS sale.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleVoided    SaleStatus = "voided"
)

// Sale is a completed POS transaction. Created once; voiding mutates status
// and triggers compensations but never deletes the record.
type Sale struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ReceiptNumber int      `gorm:"uniqueIndex;not null"`
	CashierID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerID   *uuid.UUID `gorm:"type:uuid;index"` // nil for walk-in sales

	Subtotal              decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PromoDiscount         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	PointsRedeemed        int             `gorm:"not null;default:0"`
	PointsDiscount        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	SubtotalAfterDiscount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PaymentMethod         string          `gorm:"not null"`

	Status              SaleStatus `gorm:"not null;default:'completed';index"`
	LoyaltyPointsEarned int        `gorm:"not null;default:0"`
	LoyaltyPointsUsed   int        `gorm:"not null;default:0"`

	IsVoided      bool `gorm:"not null;default:false"`
	StockRestored bool `gorm:"not null;default:false"` // compensation already applied; guards double restore
	VoidReason    *string
	VoidedBy      *string
	VoidedAt      *time.Time

	ReceiptPath *string // generated PDF, filled in async by the receipt worker

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []SaleItem `gorm:"foreignKey:SaleID"`
}

// SaleItem is one sold line with its price snapshot and the exact batches
// the quantity came out of.
type SaleItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity  int       `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	Product     *Product          `gorm:"foreignKey:ProductID"`
	BatchesUsed []BatchAllocation `gorm:"foreignKey:SaleItemID"`
}
