package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an online order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderOnTheWay   OrderStatus = "on_the_way"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment leg of an order independently of fulfilment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethodCOD marks cash-on-delivery orders; every other method is
// treated as electronic for fee purposes.
const PaymentMethodCOD = "cod"

// Order is an online order. Stock is committed at creation; cancellation
// compensates through the recorded batch allocations.
type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNumber int       `gorm:"uniqueIndex;not null"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Status        OrderStatus   `gorm:"not null;default:'pending';index"`
	PaymentStatus PaymentStatus `gorm:"not null;default:'pending';index"`
	PaymentMethod string        `gorm:"not null"`
	PaymentRef    *string       // external gateway reference, set by the confirmation hook

	Subtotal              decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PromoDiscount         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	PointsRedeemed        int             `gorm:"not null;default:0"`
	PointsDiscount        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	SubtotalAfterDiscount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DeliveryFee           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ServiceFee            decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	LoyaltyPointsEarned int  `gorm:"not null;default:0"`
	PointsAwarded       bool `gorm:"not null;default:false"` // completion awards points exactly once

	// Cancellation metadata
	CancellationReason *string
	CancelledBy        *string
	CancelledAt        *time.Time
	StockRestored      bool `gorm:"not null;default:false"`
	PointsRefunded     bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Customer      *Customer           `gorm:"foreignKey:CustomerID"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID"`
	StatusHistory []OrderStatusChange `gorm:"foreignKey:OrderID"`
}

// OrderItem mirrors SaleItem for the online channel.
type OrderItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity  int       `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	Product     *Product          `gorm:"foreignKey:ProductID"`
	BatchesUsed []BatchAllocation `gorm:"foreignKey:OrderItemID"`
}

// OrderStatusChange is one append-only status history entry.
type OrderStatusChange struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status    OrderStatus `gorm:"not null"`
	Actor     string      `gorm:"not null"`
	Notes     string
	CreatedAt time.Time
}

func (OrderStatusChange) TableName() string { return "order_status_history" }
