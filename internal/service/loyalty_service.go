package service

import (
	"context"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loyalty program constants. Rates are fixed by the program terms, not
// configuration: 4 points redeem to ₱1, purchases earn 20% of the
// discounted subtotal as points, and earned points carry a 365-day expiry
// tag (recorded for reporting, not enforced at redemption).
const (
	MinRedemptionPoints = 40  // ₱10 minimum redemption
	PointsPerPeso       = 4   // redemption rate
	EarnRatePercent     = 20  // points earned per ₱100 of discounted subtotal
	PointsExpiryDays    = 365 // expiry tag on earned lots
)

// maxPointsDiscount caps a redemption's peso value at min(₱20, 20% of subtotal).
var maxPointsDiscountPesos = decimal.NewFromInt(20)

// DiscountForPoints converts points to their peso value at 4 pts = ₱1.
func DiscountForPoints(points int) decimal.Decimal {
	return decimal.NewFromInt(int64(points)).Div(decimal.NewFromInt(PointsPerPeso))
}

// PointsForPurchase computes points earned: floor(20% of the discounted subtotal).
func PointsForPurchase(subtotalAfterDiscount decimal.Decimal) int {
	return int(subtotalAfterDiscount.
		Mul(decimal.NewFromInt(EarnRatePercent)).
		Div(decimal.NewFromInt(100)).
		IntPart())
}

// LoyaltyService is the loyalty points ledger: the sole writer of customer
// point balances. The *Tx methods join the caller's transaction so a sale
// or order and its point movements commit or roll back together.
type LoyaltyService interface {
	ValidateRedemption(ctx context.Context, customerID uuid.UUID, points int, subtotal decimal.Decimal) error

	RedeemTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error
	AwardTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error
	RefundTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error

	Balance(ctx context.Context, customerID uuid.UUID) (int, error)
	History(ctx context.Context, customerID uuid.UUID, filter dto.PointsHistoryFilter) ([]model.PointsTransaction, int64, error)
}

type loyaltyService struct {
	customers repository.CustomerRepository
	nowFn     func() time.Time
}

func NewLoyaltyService(customers repository.CustomerRepository) LoyaltyService {
	return &loyaltyService{customers: customers, nowFn: time.Now}
}

func (s *loyaltyService) ValidateRedemption(ctx context.Context, customerID uuid.UUID, points int, subtotal decimal.Decimal) error {
	if points < MinRedemptionPoints {
		return apierror.Validationf("minimum redemption is %d points, got %d", MinRedemptionPoints, points)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return apierror.NotFoundf("customer %s", customerID)
	}
	if points > customer.LoyaltyPoints {
		return apierror.Validationf("redeeming %d points but balance is %d", points, customer.LoyaltyPoints)
	}

	discount := DiscountForPoints(points)
	limit := subtotal.Mul(decimal.NewFromInt(EarnRatePercent)).Div(decimal.NewFromInt(100))
	if maxPointsDiscountPesos.LessThan(limit) {
		limit = maxPointsDiscountPesos
	}
	if discount.GreaterThan(limit) {
		return apierror.Validationf("points discount ₱%s exceeds cap ₱%s", discount.StringFixed(2), limit.StringFixed(2))
	}
	return nil
}

func (s *loyaltyService) RedeemTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error {
	return s.apply(ctx, tx, customerID, -points, model.PointsRedeemed, refID, description, nil)
}

func (s *loyaltyService) AwardTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error {
	if points <= 0 {
		return nil
	}
	expiry := s.nowFn().AddDate(0, 0, PointsExpiryDays)
	return s.apply(ctx, tx, customerID, points, model.PointsEarned, refID, description, &expiry)
}

func (s *loyaltyService) RefundTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int, refID, description string) error {
	return s.apply(ctx, tx, customerID, points, model.PointsRefunded, refID, description, nil)
}

// apply debits or credits the balance and appends the signed ledger entry.
// The entry's before/after are derived from the balance the update itself
// returned, not from a separate read: a read through the base connection
// cannot see earlier uncommitted movements in the same transaction (a sale
// redeems then awards in one tx) and would break the ledger chain.
func (s *loyaltyService) apply(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, delta int, txType model.PointsTxType, refID, description string, expiresAt *time.Time) error {
	balance, ok, err := s.customers.AddPointsTx(tx, customerID, delta)
	if err != nil {
		return err
	}
	if !ok {
		customer, ferr := s.customers.FindByID(ctx, customerID)
		if ferr != nil {
			return apierror.NotFoundf("customer %s", customerID)
		}
		return apierror.Validationf("customer %s balance %d cannot cover %d points", customerID, customer.LoyaltyPoints, -delta)
	}

	return s.customers.CreateTransactionTx(tx, &model.PointsTransaction{
		CustomerID:    customerID,
		ReferenceID:   refID,
		Type:          txType,
		Points:        delta,
		BalanceBefore: balance - delta,
		BalanceAfter:  balance,
		Description:   description,
		ExpiresAt:     expiresAt,
	})
}

func (s *loyaltyService) Balance(ctx context.Context, customerID uuid.UUID) (int, error) {
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return 0, apierror.NotFoundf("customer %s", customerID)
	}
	return customer.LoyaltyPoints, nil
}

func (s *loyaltyService) History(ctx context.Context, customerID uuid.UUID, filter dto.PointsHistoryFilter) ([]model.PointsTransaction, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		return nil, 0, apierror.NotFoundf("customer %s", customerID)
	}
	return s.customers.ListTransactions(ctx, customerID, filter)
}
