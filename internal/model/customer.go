package model

import (
	"time"

	"github.com/google/uuid"
)

// PointsTxType classifies a loyalty ledger entry.
type PointsTxType string

const (
	PointsEarned   PointsTxType = "earned"
	PointsRedeemed PointsTxType = "redeemed"
	PointsRefunded PointsTxType = "refunded"
)

// Customer owns a loyalty balance. Only the loyalty ledger writes
// LoyaltyPoints; everything else reads it.
type Customer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name          string    `gorm:"not null"`
	Email         *string   `gorm:"uniqueIndex"`
	Phone         *string
	LoyaltyPoints int  `gorm:"not null;default:0;check:loyalty_points >= 0"`
	Active        bool `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PointsTransaction is one signed entry in a customer's loyalty ledger.
// Points is the delta: positive for earned/refunded, negative for redeemed.
// Earned entries carry a 365-day expiry tag; it is recorded for reporting,
// not enforced at redemption time.
type PointsTransaction struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID    uuid.UUID    `gorm:"type:uuid;not null;index"`
	ReferenceID   string       `gorm:"not null;index"` // originating sale/order id
	Type          PointsTxType `gorm:"not null"`
	Points        int          `gorm:"not null"`
	BalanceBefore int          `gorm:"not null"`
	BalanceAfter  int          `gorm:"not null"`
	Description   string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

func (PointsTransaction) TableName() string { return "points_transactions" }
