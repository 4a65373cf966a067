package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AsyncDispatcher is the fire-and-forget side-channel services publish to.
// Implemented by the redis-backed worker dispatcher; nil in unit tests.
// Enqueue failures are logged by the caller and never fail the triggering
// operation.
type AsyncDispatcher interface {
	Notify(ctx context.Context, title, message, priority, kind string, metadata map[string]string) error
	EnqueueReceipt(ctx context.Context, saleID string) error
}

// DiscountEngine is the external promotion collaborator. Only its scalar
// output is consumed here; selection logic lives in the sidecar. A failing
// engine degrades to a zero discount.
type DiscountEngine interface {
	Quote(ctx context.Context, customerID *uuid.UUID, subtotal decimal.Decimal) (decimal.Decimal, error)
}
