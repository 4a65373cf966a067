package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a stock batch.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"  // scheduled receipt, not yet sellable
	BatchActive   BatchStatus = "active"   // sellable
	BatchDepleted BatchStatus = "depleted" // remaining hit zero
	BatchExpired  BatchStatus = "expired"  // expiry date passed while active
)

// AdjustmentType classifies a batch usage entry.
type AdjustmentType string

const (
	AdjustmentInitial     AdjustmentType = "initial"
	AdjustmentSale        AdjustmentType = "sale"
	AdjustmentRestoration AdjustmentType = "restoration"
	AdjustmentCorrection  AdjustmentType = "correction"
	AdjustmentDamage      AdjustmentType = "damage"
	AdjustmentExpiry      AdjustmentType = "expiry"
)

// consuming reports whether this adjustment type reduces remaining quantity.
func (t AdjustmentType) consuming() bool {
	switch t {
	case AdjustmentSale, AdjustmentDamage, AdjustmentExpiry:
		return true
	}
	return false
}

// Batch is a discrete stock receipt: its own cost, optional expiry, and its
// own remaining quantity. Batches are never deleted; quantity changes are
// mirrored into the append-only usage history.
//
// Invariant: quantity_received − quantity_remaining equals the net sum of
// consuming usage entries minus restoring ones.
type Batch struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null;index"`
	BatchNumber       int       `gorm:"uniqueIndex;not null"`
	QuantityReceived  int       `gorm:"not null"`
	QuantityRemaining int       `gorm:"not null;check:quantity_remaining >= 0"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ExpiryDate        *time.Time      `gorm:"index"`
	DateReceived      time.Time       `gorm:"not null;index"`
	Status            BatchStatus     `gorm:"not null;default:'active';index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Product *Product     `gorm:"foreignKey:ProductID"`
	Usage   []BatchUsage `gorm:"foreignKey:BatchID"`
}

// Expired reports whether the batch's expiry date has passed as of now.
func (b *Batch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// ExpiresWithin reports whether the batch expires inside the given horizon.
func (b *Batch) ExpiresWithin(now time.Time, horizon time.Duration) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now.Add(horizon))
}

// BatchUsage is one append-only ledger entry recording a quantity change on
// a batch. QuantityUsed is always a magnitude; the adjustment type tells
// whether it consumed or restored stock.
type BatchUsage struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BatchID        uuid.UUID      `gorm:"type:uuid;not null;index"`
	QuantityUsed   int            `gorm:"not null"`
	RemainingAfter int            `gorm:"not null"`
	AdjustmentType AdjustmentType `gorm:"not null"`
	AdjustedBy     string         `gorm:"not null"`
	Source         string         // "pos_sale" | "online_order" | "manual" | "system"
	Notes          string
	CreatedAt      time.Time
}

// TableName overrides GORM's pluralization (batch_usages → batch_usage).
func (BatchUsage) TableName() string { return "batch_usage" }

// NetConsumed computes quantity consumed minus quantity restored over a
// usage history. Used by tests to assert the conservation invariant.
func NetConsumed(entries []BatchUsage) int {
	net := 0
	for _, e := range entries {
		if e.AdjustmentType.consuming() {
			net += e.QuantityUsed
		} else if e.AdjustmentType == AdjustmentRestoration || e.AdjustmentType == AdjustmentCorrection {
			net -= e.QuantityUsed
		}
	}
	return net
}

// BatchAllocation records one FIFO deduction against a batch. Rows hang off
// either a sale item or an order item; the caller must retain them because
// they are the exact compensation unit for voids and cancellations.
type BatchAllocation struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BatchID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	SaleItemID  *uuid.UUID `gorm:"type:uuid;index"`
	OrderItemID *uuid.UUID `gorm:"type:uuid;index"`
	Quantity    int        `gorm:"not null"` // quantity deducted from this batch
	CostPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ExpiryDate  *time.Time
	CreatedAt   time.Time
}

func (BatchAllocation) TableName() string { return "batch_allocations" }
