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

type SaleService interface {
	CreateSale(ctx context.Context, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	VoidSale(ctx context.Context, id uuid.UUID, actor, reason string) error
	GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	repo       repository.SaleRepository
	products   repository.ProductRepository
	batches    BatchService
	loyalty    LoyaltyService
	promo      DiscountEngine
	dispatcher AsyncDispatcher
}

func NewSaleService(
	repo repository.SaleRepository,
	products repository.ProductRepository,
	batches BatchService,
	loyalty LoyaltyService,
	promo DiscountEngine,
	dispatcher AsyncDispatcher,
) SaleService {
	return &saleService{
		repo:       repo,
		products:   products,
		batches:    batches,
		loyalty:    loyalty,
		promo:      promo,
		dispatcher: dispatcher,
	}
}

// ── CreateSale ────────────────────────────────────────────────────────────────
// A sale is all-or-nothing even though the batch ledger's unit of atomicity
// is per item:
//  1. Snapshot prices from the catalog (pre-flight, no reservation)
//  2. Optional promo scalar + points redemption validation
//  3. Per-item FIFO deduction; a failure rolls back every earlier item's
//     deductions before the error surfaces
//  4. Persist sale + redeem + award points in one DB transaction; a failed
//     persist compensates the committed deductions the same way
//  5. Fire-and-forget: receipt PDF job, sale notification

func (s *saleService) CreateSale(ctx context.Context, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	type resolvedItem struct {
		productID uuid.UUID
		name      string
		price     decimal.Decimal
		quantity  int
		subtotal  decimal.Decimal
	}

	var customerID *uuid.UUID
	if req.CustomerID != nil {
		id, err := uuid.Parse(*req.CustomerID)
		if err != nil {
			return nil, apierror.Validationf("invalid customer_id: %v", err)
		}
		customerID = &id
	}

	// 1. Price snapshot
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

	// 2. Discounts: promo scalar first, then points
	promoDiscount := s.quotePromo(ctx, customerID, subtotal)

	pointsDiscount := decimal.Zero
	if req.PointsToRedeem > 0 {
		if customerID == nil {
			return nil, apierror.Validationf("points redemption requires a customer")
		}
		if err := s.loyalty.ValidateRedemption(ctx, *customerID, req.PointsToRedeem, subtotal); err != nil {
			return nil, err
		}
		pointsDiscount = DiscountForPoints(req.PointsToRedeem)
	}

	subtotalAfterDiscount := subtotal.Sub(promoDiscount).Sub(pointsDiscount)
	if subtotalAfterDiscount.IsNegative() {
		subtotalAfterDiscount = decimal.Zero
	}
	total := subtotalAfterDiscount

	// 3. FIFO deductions with compensating rollback
	usage := UsageContext{Actor: cashierID.String(), Source: "pos_sale"}
	var deducted [][]model.BatchAllocation
	for i, r := range resolved {
		allocs, err := s.batches.DeductFIFO(ctx, r.productID, r.quantity, usage)
		if err != nil {
			s.rollbackDeductions(ctx, deducted[:i], usage,
				fmt.Sprintf("sale aborted: %s failed", r.name))
			return nil, fmt.Errorf("deducting stock for %s: %w", r.name, err)
		}
		deducted = append(deducted, allocs)
	}

	// 4. Persist sale + point movements atomically
	pointsEarned := 0
	if customerID != nil {
		pointsEarned = PointsForPurchase(subtotalAfterDiscount)
	}

	var sale model.Sale
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		receiptNum, err := s.repo.NextReceiptNumber(ctx, tx)
		if err != nil {
			return err
		}
		sale = model.Sale{
			ReceiptNumber:         receiptNum,
			CashierID:             cashierID,
			CustomerID:            customerID,
			Subtotal:              subtotal,
			PromoDiscount:         promoDiscount,
			PointsRedeemed:        req.PointsToRedeem,
			PointsDiscount:        pointsDiscount,
			SubtotalAfterDiscount: subtotalAfterDiscount,
			TotalAmount:           total,
			PaymentMethod:         req.PaymentMethod,
			Status:                model.SaleCompleted,
			LoyaltyPointsEarned:   pointsEarned,
			LoyaltyPointsUsed:     req.PointsToRedeem,
		}
		for i, r := range resolved {
			sale.Items = append(sale.Items, model.SaleItem{
				ProductID:   r.productID,
				Quantity:    r.quantity,
				UnitPrice:   r.price,
				Subtotal:    r.subtotal,
				BatchesUsed: deducted[i],
			})
		}
		if err := s.repo.Create(ctx, tx, &sale); err != nil {
			return err
		}

		if req.PointsToRedeem > 0 {
			if err := s.loyalty.RedeemTx(ctx, tx, *customerID, req.PointsToRedeem, sale.ID.String(),
				fmt.Sprintf("Redeemed on receipt #%d", receiptNum)); err != nil {
				return err
			}
		}
		if pointsEarned > 0 {
			if err := s.loyalty.AwardTx(ctx, tx, *customerID, pointsEarned, sale.ID.String(),
				fmt.Sprintf("Earned on receipt #%d", receiptNum)); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		// Deductions already committed per item; compensate before surfacing.
		s.rollbackDeductions(ctx, deducted, usage, "sale persist failed")
		return nil, txErr
	}

	// 5. Fire-and-forget side effects
	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueReceipt(ctx, sale.ID.String()); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID.String()).Msg("sale: failed to enqueue receipt job")
		}
		if err := s.dispatcher.Notify(ctx, "Sale completed",
			fmt.Sprintf("Receipt #%d for ₱%s", sale.ReceiptNumber, sale.TotalAmount.StringFixed(2)),
			"normal", "sale_created", map[string]string{"sale_id": sale.ID.String()}); err != nil {
			log.Warn().Err(err).Msg("sale: failed to enqueue notification")
		}
	}

	resp := saleToResponse(&sale)
	for i, r := range resolved {
		resp.Items[i].Product = r.name
	}
	return resp, nil
}

// rollbackDeductions restores every already-performed deduction of an
// aborted sale. This is the most correctness-critical error path in the
// core: a failed rollback leaves inventory inconsistent, so it is always
// logged, never swallowed.
func (s *saleService) rollbackDeductions(ctx context.Context, deducted [][]model.BatchAllocation, usage UsageContext, reason string) {
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
				Msg("sale: ROLLBACK FAILED — inventory inconsistent, manual correction required")
		}
	}
}

// ── VoidSale ──────────────────────────────────────────────────────────────────

func (s *saleService) VoidSale(ctx context.Context, id uuid.UUID, actor, reason string) error {
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return apierror.NotFoundf("sale %s", id)
	}
	if sale.IsVoided {
		return fmt.Errorf("%w: sale %s", apierror.ErrAlreadyVoided, id)
	}

	// Claim the restore flag durably BEFORE moving any stock: if the refund
	// below fails and the void is retried, the committed flag stops the
	// retry from crediting the same allocations a second time.
	if !sale.StockRestored {
		claimed, err := s.repo.ClaimStockRestored(ctx, id)
		if err != nil {
			return err
		}
		if claimed {
			usage := UsageContext{
				Actor:  actor,
				Source: "pos_sale",
				Notes:  fmt.Sprintf("Void receipt #%d — %s", sale.ReceiptNumber, reason),
			}
			for _, item := range sale.Items {
				if err := s.batches.Restore(ctx, item.BatchesUsed, usage); err != nil {
					log.Error().Err(err).
						Str("sale_id", id.String()).
						Msg("sale: void rollback failed — inventory inconsistent, manual correction required")
					return err
				}
			}
		}
	}
	sale.StockRestored = true

	now := time.Now()
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if sale.PointsRedeemed > 0 && sale.CustomerID != nil {
			if err := s.loyalty.RefundTx(ctx, tx, *sale.CustomerID, sale.PointsRedeemed, sale.ID.String(),
				fmt.Sprintf("Refund for voided receipt #%d", sale.ReceiptNumber)); err != nil {
				return err
			}
		}
		sale.Status = model.SaleVoided
		sale.IsVoided = true
		sale.VoidReason = &reason
		sale.VoidedBy = &actor
		sale.VoidedAt = &now
		return s.repo.MarkVoidedTx(tx, sale)
	})
	if txErr != nil {
		return txErr
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Notify(ctx, "Sale voided",
			fmt.Sprintf("Receipt #%d voided by %s: %s", sale.ReceiptNumber, actor, reason),
			"high", "sale_voided", map[string]string{"sale_id": id.String()}); err != nil {
			log.Warn().Err(err).Msg("sale: failed to enqueue void notification")
		}
	}
	return nil
}

func (s *saleService) GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("sale %s", id)
	}
	return saleToResponse(sale), nil
}

func (s *saleService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if filter.Status == "" {
		filter.Status = string(model.SaleCompleted)
	}
	sales, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		items = append(items, *saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// quotePromo fetches the optional external discount scalar. The engine is a
// collaborator, not a dependency: any failure degrades to zero discount.
func (s *saleService) quotePromo(ctx context.Context, customerID *uuid.UUID, subtotal decimal.Decimal) decimal.Decimal {
	if s.promo == nil {
		return decimal.Zero
	}
	d, err := s.promo.Quote(ctx, customerID, subtotal)
	if err != nil {
		log.Warn().Err(err).Msg("sale: promo engine unavailable, applying zero discount")
		return decimal.Zero
	}
	if d.IsNegative() || d.GreaterThan(subtotal) {
		log.Warn().Str("discount", d.String()).Msg("sale: promo engine returned out-of-range discount, ignoring")
		return decimal.Zero
	}
	return d
}

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
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
		items = append(items, dto.SaleItemResponse{
			ProductID:   item.ProductID.String(),
			Product:     name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			BatchesUsed: batches,
		})
	}
	var customerID *string
	if s.CustomerID != nil {
		cid := s.CustomerID.String()
		customerID = &cid
	}
	return &dto.SaleResponse{
		ID:                    s.ID.String(),
		ReceiptNumber:         s.ReceiptNumber,
		CashierID:             s.CashierID.String(),
		CustomerID:            customerID,
		Items:                 items,
		Subtotal:              s.Subtotal,
		PromoDiscount:         s.PromoDiscount,
		PointsRedeemed:        s.PointsRedeemed,
		PointsDiscount:        s.PointsDiscount,
		SubtotalAfterDiscount: s.SubtotalAfterDiscount,
		TotalAmount:           s.TotalAmount,
		PaymentMethod:         s.PaymentMethod,
		Status:                string(s.Status),
		LoyaltyPointsEarned:   s.LoyaltyPointsEarned,
		LoyaltyPointsUsed:     s.LoyaltyPointsUsed,
		IsVoided:              s.IsVoided,
		CreatedAt:             s.CreatedAt.Format(time.RFC3339),
	}
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
