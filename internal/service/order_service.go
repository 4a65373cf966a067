package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fee schedule. COD pays a flat handling fee; electronic payments pay a
// gateway passthrough rounded up to the next ₱5, floored at ₱20.
var (
	codServiceFee        = decimal.NewFromInt(15)
	minElectronicFee     = decimal.NewFromInt(20)
	gatewayRate          = decimal.NewFromFloat(0.035)
	gatewayFixed         = decimal.NewFromInt(15)
	feeRoundingIncrement = decimal.NewFromInt(5)
)

// orderTransitions is the full fulfilment state machine. Cancellation out of
// pending/confirmed goes through CancelOrder so compensation runs; the table
// still lists it so UpdateStatus rejects it with a pointer instead of a
// generic error.
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:    {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed:  {model.OrderProcessing, model.OrderCancelled},
	model.OrderProcessing: {model.OrderOnTheWay},
	model.OrderOnTheWay:   {model.OrderCompleted},
	model.OrderCompleted:  {},
	model.OrderCancelled:  {},
}

func transitionAllowed(from, to model.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type OrderService interface {
	CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, actor string, req dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error)
	CancelOrder(ctx context.Context, id uuid.UUID, actor, reason string) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, req dto.PaymentCallbackRequest) (*dto.OrderResponse, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error)
	ListOrders(ctx context.Context, filter dto.OrderFilter) (*dto.OrderListResponse, error)
}

type orderService struct {
	repo        repository.OrderRepository
	products    repository.ProductRepository
	batches     BatchService
	loyalty     LoyaltyService
	promo       DiscountEngine
	dispatcher  AsyncDispatcher
	deliveryFee decimal.Decimal
}

func NewOrderService(
	repo repository.OrderRepository,
	products repository.ProductRepository,
	batches BatchService,
	loyalty LoyaltyService,
	promo DiscountEngine,
	dispatcher AsyncDispatcher,
	deliveryFee float64,
) OrderService {
	return &orderService{
		repo:        repo,
		products:    products,
		batches:     batches,
		loyalty:     loyalty,
		promo:       promo,
		dispatcher:  dispatcher,
		deliveryFee: decimal.NewFromFloat(deliveryFee),
	}
}

// serviceFee is ₱15 flat for COD, otherwise the gateway passthrough:
// 3.5% of (goods + delivery) plus ₱15, rounded up to the next ₱5,
// never below ₱20.
func serviceFee(paymentMethod string, subtotalAfterDiscount, deliveryFee decimal.Decimal) decimal.Decimal {
	if paymentMethod == model.PaymentMethodCOD {
		return codServiceFee
	}
	raw := gatewayRate.Mul(subtotalAfterDiscount.Add(deliveryFee)).Add(gatewayFixed)
	rounded := raw.Div(feeRoundingIncrement).Ceil().Mul(feeRoundingIncrement)
	if rounded.LessThan(minElectronicFee) {
		return minElectronicFee
	}
	return rounded
}

// ── CreateOrder ───────────────────────────────────────────────────────────────
// Stock is committed at creation, not at confirmation: an order that exists
// has its quantities already deducted. The aggregate availability pre-check
// is a fast-fail only; the per-item FIFO deduction remains the authority.

func (s *orderService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	type resolvedItem struct {
		productID uuid.UUID
		name      string
		price     decimal.Decimal
		quantity  int
		subtotal  decimal.Decimal
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, apierror.Validationf("invalid customer_id: %v", err)
	}

	var resolved []resolvedItem
	subtotal := decimal.Zero
	for _, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, apierror.Validationf("invalid product_id: %v", err)
		}
		p, err := s.products.FindByID(ctx, pid)
		if err != nil {
			return nil, apierror.NotFoundf("product %s", item.ProductID)
		}
		if !p.Active {
			return nil, apierror.Validationf("product %s is inactive", p.Name)
		}
		available, err := s.batches.Available(ctx, pid)
		if err != nil {
			return nil, err
		}
		if available < item.Quantity {
			return nil, &apierror.InsufficientStockError{
				ProductID: pid, Requested: item.Quantity, Available: available,
			}
		}
		lineSubtotal := p.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)
		resolved = append(resolved, resolvedItem{
			productID: pid,
			name:      p.Name,
			price:     p.SellingPrice,
			quantity:  item.Quantity,
			subtotal:  lineSubtotal,
		})
	}

	promoDiscount := decimal.Zero
	if s.promo != nil {
		if d, err := s.promo.Quote(ctx, &customerID, subtotal); err != nil {
			log.Warn().Err(err).Msg("order: promo engine unavailable, applying zero discount")
		} else if !d.IsNegative() && !d.GreaterThan(subtotal) {
			promoDiscount = d
		}
	}

	pointsDiscount := decimal.Zero
	if req.PointsToRedeem > 0 {
		if err := s.loyalty.ValidateRedemption(ctx, customerID, req.PointsToRedeem, subtotal); err != nil {
			return nil, err
		}
		pointsDiscount = DiscountForPoints(req.PointsToRedeem)
	}

	subtotalAfterDiscount := subtotal.Sub(promoDiscount).Sub(pointsDiscount)
	if subtotalAfterDiscount.IsNegative() {
		subtotalAfterDiscount = decimal.Zero
	}
	fee := serviceFee(req.PaymentMethod, subtotalAfterDiscount, s.deliveryFee)
	total := subtotalAfterDiscount.Add(s.deliveryFee).Add(fee)

	usage := UsageContext{Actor: customerID.String(), Source: "online_order"}
	var deducted [][]model.BatchAllocation
	for i, r := range resolved {
		allocs, err := s.batches.DeductFIFO(ctx, r.productID, r.quantity, usage)
		if err != nil {
			s.rollbackDeductions(ctx, deducted[:i], usage,
				fmt.Sprintf("order aborted: %s failed", r.name))
			return nil, fmt.Errorf("deducting stock for %s: %w", r.name, err)
		}
		deducted = append(deducted, allocs)
	}

	var order model.Order
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		orderNum, err := s.repo.NextOrderNumber(ctx, tx)
		if err != nil {
			return err
		}
		order = model.Order{
			OrderNumber:           orderNum,
			CustomerID:            customerID,
			Status:                model.OrderPending,
			PaymentStatus:         model.PaymentPending,
			PaymentMethod:         req.PaymentMethod,
			Subtotal:              subtotal,
			PromoDiscount:         promoDiscount,
			PointsRedeemed:        req.PointsToRedeem,
			PointsDiscount:        pointsDiscount,
			SubtotalAfterDiscount: subtotalAfterDiscount,
			DeliveryFee:           s.deliveryFee,
			ServiceFee:            fee,
			TotalAmount:           total,
		}
		for i, r := range resolved {
			order.Items = append(order.Items, model.OrderItem{
				ProductID:   r.productID,
				Quantity:    r.quantity,
				UnitPrice:   r.price,
				Subtotal:    r.subtotal,
				BatchesUsed: deducted[i],
			})
		}
		if err := s.repo.Create(ctx, tx, &order); err != nil {
			return err
		}
		if req.PointsToRedeem > 0 {
			if err := s.loyalty.RedeemTx(ctx, tx, customerID, req.PointsToRedeem, order.ID.String(),
				fmt.Sprintf("Redeemed on order #%d", orderNum)); err != nil {
				return err
			}
		}
		return s.repo.AppendStatusTx(tx, &model.OrderStatusChange{
			OrderID: order.ID,
			Status:  model.OrderPending,
			Actor:   customerID.String(),
			Notes:   "order created",
		})
	})
	if txErr != nil {
		s.rollbackDeductions(ctx, deducted, usage, "order persist failed")
		return nil, txErr
	}

	// COD needs no payment confirmation: confirm immediately so the kitchen
	// sees it. A failure here leaves the order pending; the sweep or a staff
	// member picks it up.
	if req.PaymentMethod == model.PaymentMethodCOD {
		if _, err := s.UpdateStatus(ctx, order.ID, "system", dto.UpdateOrderStatusRequest{
			Status: string(model.OrderConfirmed),
			Notes:  "auto-confirmed: cash on delivery",
		}); err != nil {
			log.Error().Err(err).Str("order_id", order.ID.String()).Msg("order: COD auto-confirm failed")
		} else {
			order.Status = model.OrderConfirmed
		}
	}

	s.notify(ctx, "New order",
		fmt.Sprintf("Order #%d for ₱%s (%s)", order.OrderNumber, total.StringFixed(2), req.PaymentMethod),
		"normal", "order_created", order.ID)

	resp := orderToResponse(&order)
	for i, r := range resolved {
		resp.Items[i].Product = r.name
	}
	return resp, nil
}

func (s *orderService) rollbackDeductions(ctx context.Context, deducted [][]model.BatchAllocation, usage UsageContext, reason string) {
	for _, allocs := range deducted {
		if len(allocs) == 0 {
			continue
		}
		restoreCtx := usage
		restoreCtx.Notes = reason
		if err := s.batches.Restore(ctx, allocs, restoreCtx); err != nil {
			log.Error().Err(err).
				Str("reason", reason).
				Int("allocations", len(allocs)).
				Msg("order: ROLLBACK FAILED — inventory inconsistent, manual correction required")
		}
	}
}

// ── UpdateStatus ──────────────────────────────────────────────────────────────

func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, actor string, req dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("order %s", id)
	}
	target := model.OrderStatus(req.Status)
	if !transitionAllowed(order.Status, target) {
		return nil, &apierror.InvalidTransitionError{From: string(order.Status), To: req.Status}
	}
	if target == model.OrderCancelled {
		return nil, apierror.Validationf("use the cancel endpoint so stock and points are compensated")
	}

	switch target {
	case model.OrderConfirmed:
		// Stock was committed at creation; verify the allocations still
		// cover each line before the kitchen starts on it.
		for _, item := range order.Items {
			allocated := 0
			for _, a := range item.BatchesUsed {
				allocated += a.Quantity
			}
			if allocated != item.Quantity {
				return nil, fmt.Errorf("order %s: item %s allocations cover %d of %d units",
					id, item.ProductID, allocated, item.Quantity)
			}
		}
	case model.OrderCompleted:
		if order.PaymentMethod == model.PaymentMethodCOD {
			order.PaymentStatus = model.PaymentPaid
		}
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if target == model.OrderCompleted && !order.PointsAwarded {
			// Conditional claim inside the transaction: two concurrent
			// completions both pass the snapshot check, but only one row
			// update succeeds.
			claimed, err := s.repo.ClaimPointsAwardedTx(tx, order.ID)
			if err != nil {
				return err
			}
			if claimed {
				points := PointsForPurchase(order.SubtotalAfterDiscount)
				if points > 0 {
					if err := s.loyalty.AwardTx(ctx, tx, order.CustomerID, points, order.ID.String(),
						fmt.Sprintf("Earned on order #%d", order.OrderNumber)); err != nil {
						return err
					}
				}
				order.LoyaltyPointsEarned = points
			}
			order.PointsAwarded = true
		}
		order.Status = target
		if err := s.repo.SaveTx(tx, order); err != nil {
			return err
		}
		return s.repo.AppendStatusTx(tx, &model.OrderStatusChange{
			OrderID: order.ID,
			Status:  target,
			Actor:   actor,
			Notes:   req.Notes,
		})
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notify(ctx, "Order status changed",
		fmt.Sprintf("Order #%d is now %s", order.OrderNumber, target),
		"normal", "order_status", order.ID)
	return orderToResponse(order), nil
}

// ── CancelOrder ───────────────────────────────────────────────────────────────
// Only pending and confirmed orders can be cancelled; once the kitchen is
// processing, the goods are gone. Compensation (stock restore, points
// refund, payment refund marker) runs exactly once, guarded by the flags.

func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID, actor, reason string) error {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return apierror.NotFoundf("order %s", id)
	}
	if order.Status == model.OrderCancelled {
		return fmt.Errorf("%w: order %s", apierror.ErrAlreadyCancelled, id)
	}
	if order.Status != model.OrderPending && order.Status != model.OrderConfirmed {
		return &apierror.InvalidTransitionError{From: string(order.Status), To: string(model.OrderCancelled)}
	}

	// Claim the restore flag durably BEFORE moving any stock so a retried
	// cancel after a failed refund cannot double-credit the allocations.
	if !order.StockRestored {
		claimed, err := s.repo.ClaimStockRestored(ctx, id)
		if err != nil {
			return err
		}
		if claimed {
			usage := UsageContext{
				Actor:  actor,
				Source: "online_order",
				Notes:  fmt.Sprintf("Cancel order #%d — %s", order.OrderNumber, reason),
			}
			for _, item := range order.Items {
				if err := s.batches.Restore(ctx, item.BatchesUsed, usage); err != nil {
					log.Error().Err(err).
						Str("order_id", id.String()).
						Msg("order: cancel rollback failed — inventory inconsistent, manual correction required")
					return err
				}
			}
		}
	}
	order.StockRestored = true

	now := time.Now()
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if order.PointsRedeemed > 0 && !order.PointsRefunded {
			if err := s.loyalty.RefundTx(ctx, tx, order.CustomerID, order.PointsRedeemed, order.ID.String(),
				fmt.Sprintf("Refund for cancelled order #%d", order.OrderNumber)); err != nil {
				return err
			}
			order.PointsRefunded = true
		}
		if order.PaymentStatus == model.PaymentPaid {
			order.PaymentStatus = model.PaymentRefunded
		}
		order.Status = model.OrderCancelled
		order.CancellationReason = &reason
		order.CancelledBy = &actor
		order.CancelledAt = &now
		if err := s.repo.SaveTx(tx, order); err != nil {
			return err
		}
		return s.repo.AppendStatusTx(tx, &model.OrderStatusChange{
			OrderID: order.ID,
			Status:  model.OrderCancelled,
			Actor:   actor,
			Notes:   reason,
		})
	})
	if txErr != nil {
		return txErr
	}

	s.notify(ctx, "Order cancelled",
		fmt.Sprintf("Order #%d cancelled by %s: %s", order.OrderNumber, actor, reason),
		"high", "order_cancelled", order.ID)
	return nil
}

// ── UpdatePaymentStatus ───────────────────────────────────────────────────────
// External confirmation hook. A paid notification on a pending order also
// confirms it, so electronic orders flow to the kitchen without staff action.

func (s *orderService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, req dto.PaymentCallbackRequest) (*dto.OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("order %s", id)
	}
	if order.Status == model.OrderCancelled {
		return nil, fmt.Errorf("%w: order %s", apierror.ErrAlreadyCancelled, id)
	}

	order.PaymentStatus = model.PaymentStatus(req.Status)
	order.PaymentRef = &req.Reference
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.repo.SaveTx(tx, order)
	})
	if txErr != nil {
		return nil, txErr
	}

	if order.PaymentStatus == model.PaymentPaid && order.Status == model.OrderPending {
		return s.UpdateStatus(ctx, id, "system", dto.UpdateOrderStatusRequest{
			Status: string(model.OrderConfirmed),
			Notes:  "auto-confirmed: payment received",
		})
	}
	if order.PaymentStatus == model.PaymentFailed {
		s.notify(ctx, "Payment failed",
			fmt.Sprintf("Payment failed for order #%d (ref %s)", order.OrderNumber, req.Reference),
			"high", "payment_failed", order.ID)
	}
	return orderToResponse(order), nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("order %s", id)
	}
	return orderToResponse(order), nil
}

func (s *orderService) ListOrders(ctx context.Context, filter dto.OrderFilter) (*dto.OrderListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, *orderToResponse(&orders[i]))
	}
	return &dto.OrderListResponse{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *orderService) notify(ctx context.Context, title, message, priority, kind string, orderID uuid.UUID) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Notify(ctx, title, message, priority, kind,
		map[string]string{"order_id": orderID.String()}); err != nil {
		log.Warn().Err(err).Msg("order: failed to enqueue notification")
	}
}

func orderToResponse(o *model.Order) *dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		name := ""
		if item.Product != nil {
			name = item.Product.Name
		}
		batches := make([]dto.BatchUsedResponse, 0, len(item.BatchesUsed))
		for _, a := range item.BatchesUsed {
			batches = append(batches, dto.BatchUsedResponse{
				BatchID:          a.BatchID.String(),
				QuantityDeducted: a.Quantity,
				CostPrice:        a.CostPrice,
				ExpiryDate:       formatDatePtr(a.ExpiryDate),
			})
		}
		items = append(items, dto.OrderItemResponse{
			ProductID:   item.ProductID.String(),
			Product:     name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			BatchesUsed: batches,
		})
	}
	history := make([]dto.StatusChangeResponse, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		history = append(history, dto.StatusChangeResponse{
			Status:    string(h.Status),
			Actor:     h.Actor,
			Notes:     h.Notes,
			Timestamp: h.CreatedAt.Format(time.RFC3339),
		})
	}
	return &dto.OrderResponse{
		ID:                    o.ID.String(),
		OrderNumber:           o.OrderNumber,
		CustomerID:            o.CustomerID.String(),
		Items:                 items,
		OrderStatus:           string(o.Status),
		PaymentStatus:         string(o.PaymentStatus),
		PaymentMethod:         o.PaymentMethod,
		Subtotal:              o.Subtotal,
		PromoDiscount:         o.PromoDiscount,
		PointsRedeemed:        o.PointsRedeemed,
		PointsDiscount:        o.PointsDiscount,
		SubtotalAfterDiscount: o.SubtotalAfterDiscount,
		DeliveryFee:           o.DeliveryFee,
		ServiceFee:            o.ServiceFee,
		TotalAmount:           o.TotalAmount,
		LoyaltyPointsEarned:   o.LoyaltyPointsEarned,
		StatusHistory:         history,
		CancellationReason:    o.CancellationReason,
		CreatedAt:             o.CreatedAt.Format(time.RFC3339),
	}
}
