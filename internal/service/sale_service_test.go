package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saleFixture struct {
	products   *fakeProductRepo
	batches    *fakeBatchRepo
	sales      *fakeSaleRepo
	customers  *fakeCustomerRepo
	dispatcher *fakeDispatcher
	svc        SaleService
}

func newSaleFixture(promo DiscountEngine) *saleFixture {
	f := &saleFixture{
		products:   newFakeProductRepo(),
		batches:    newFakeBatchRepo(),
		sales:      newFakeSaleRepo(),
		customers:  newFakeCustomerRepo(),
		dispatcher: &fakeDispatcher{},
	}
	batchSvc := NewBatchService(f.products, f.batches, f.dispatcher, 30)
	loyaltySvc := NewLoyaltyService(f.customers)
	f.svc = NewSaleService(f.sales, f.products, batchSvc, loyaltySvc, promo, f.dispatcher)
	return f
}

func TestCreateSaleHappyPath(t *testing.T) {
	f := newSaleFixture(nil)
	ctx := context.Background()
	cashier := uuid.New()

	p := seedProduct(f.products, "Adobo Meal", 100)
	seedBatch(f.batches, p.ID, 10, 60, daysFromNow(7), time.Now())
	c := seedCustomer(f.customers, 200)
	cid := c.ID.String()

	resp, err := f.svc.CreateSale(ctx, cashier, dto.CreateSaleRequest{
		Items:          []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 2}},
		PaymentMethod:  "cash",
		CustomerID:     &cid,
		PointsToRedeem: 40,
	})
	require.NoError(t, err)

	assert.Equal(t, 1000, resp.ReceiptNumber)
	assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(200)), "subtotal %s", resp.Subtotal)
	assert.True(t, resp.PointsDiscount.Equal(decimal.NewFromInt(10))) // 40 pts = ₱10
	assert.True(t, resp.SubtotalAfterDiscount.Equal(decimal.NewFromInt(190)))
	assert.True(t, resp.TotalAmount.Equal(decimal.NewFromInt(190)))
	assert.Equal(t, 38, resp.LoyaltyPointsEarned) // floor(20% of 190)
	assert.Equal(t, 40, resp.LoyaltyPointsUsed)

	// Allocations are recorded on the line so the void path can compensate.
	require.Len(t, resp.Items, 1)
	require.Len(t, resp.Items[0].BatchesUsed, 1)
	assert.Equal(t, 2, resp.Items[0].BatchesUsed[0].QuantityDeducted)

	// Balance reflects redeem then award: 200 − 40 + 38.
	assert.Equal(t, 198, f.customers.customers[c.ID].LoyaltyPoints)

	// Receipt job and sale notification queued.
	assert.Equal(t, []string{resp.ID}, f.dispatcher.receipts)
	kinds := make([]string, 0, len(f.dispatcher.notifications))
	for _, n := range f.dispatcher.notifications {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, "sale_created")
}

func TestCreateSaleWalkInEarnsNoPoints(t *testing.T) {
	f := newSaleFixture(nil)

	p := seedProduct(f.products, "Lumpia", 25)
	seedBatch(f.batches, p.ID, 50, 12, nil, time.Now())

	resp, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 4}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.LoyaltyPointsEarned)
	assert.Nil(t, resp.CustomerID)
}

func TestCreateSalePointsWithoutCustomerRejected(t *testing.T) {
	f := newSaleFixture(nil)

	p := seedProduct(f.products, "Halo-Halo", 85)
	seedBatch(f.batches, p.ID, 10, 40, nil, time.Now())

	_, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:          []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMethod:  "cash",
		PointsToRedeem: 40,
	})
	assert.ErrorIs(t, err, apierror.ErrValidation)
}

func TestCreateSalePromoDiscountApplied(t *testing.T) {
	f := newSaleFixture(&fakePromo{discount: decimal.NewFromInt(30)})

	p := seedProduct(f.products, "Sisig", 150)
	seedBatch(f.batches, p.ID, 10, 90, nil, time.Now())

	resp, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 2}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.True(t, resp.PromoDiscount.Equal(decimal.NewFromInt(30)))
	assert.True(t, resp.TotalAmount.Equal(decimal.NewFromInt(270)))
}

func TestCreateSalePromoFailureDegradesToZero(t *testing.T) {
	f := newSaleFixture(&fakePromo{err: errors.New("sidecar down")})

	p := seedProduct(f.products, "Pancit", 120)
	seedBatch(f.batches, p.ID, 10, 70, nil, time.Now())

	resp, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.True(t, resp.PromoDiscount.IsZero())
	assert.True(t, resp.TotalAmount.Equal(decimal.NewFromInt(120)))
}

func TestCreateSalePromoOverSubtotalIgnored(t *testing.T) {
	f := newSaleFixture(&fakePromo{discount: decimal.NewFromInt(9999)})

	p := seedProduct(f.products, "Taho", 20)
	seedBatch(f.batches, p.ID, 10, 8, nil, time.Now())

	resp, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.True(t, resp.PromoDiscount.IsZero())
}

func TestCreateSaleMidSaleFailureRollsBackEarlierItems(t *testing.T) {
	f := newSaleFixture(nil)
	ctx := context.Background()

	p1 := seedProduct(f.products, "Bangus", 180)
	b1 := seedBatch(f.batches, p1.ID, 10, 110, daysFromNow(4), time.Now())
	p2 := seedProduct(f.products, "Tilapia", 140)
	seedBatch(f.batches, p2.ID, 1, 85, daysFromNow(4), time.Now())

	_, err := f.svc.CreateSale(ctx, uuid.New(), dto.CreateSaleRequest{
		Items: []dto.SaleItemRequest{
			{ProductID: p1.ID.String(), Quantity: 3},
			{ProductID: p2.ID.String(), Quantity: 5}, // only 1 left
		},
		PaymentMethod: "cash",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)

	// First item's deduction was compensated; the ledger nets to zero.
	assert.Equal(t, 10, f.batches.batches[b1.ID].QuantityRemaining)
	assert.Equal(t, 0, model.NetConsumed(f.batches.usage[b1.ID]))
	assert.Empty(t, f.sales.sales)
}

func TestVoidSaleRestoresStockAndRefundsPoints(t *testing.T) {
	f := newSaleFixture(nil)
	ctx := context.Background()

	p := seedProduct(f.products, "Lechon", 450)
	b := seedBatch(f.batches, p.ID, 5, 300, daysFromNow(2), time.Now())
	c := seedCustomer(f.customers, 100)
	cid := c.ID.String()

	resp, err := f.svc.CreateSale(ctx, uuid.New(), dto.CreateSaleRequest{
		Items:          []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 5}},
		PaymentMethod:  "cash",
		CustomerID:     &cid,
		PointsToRedeem: 80,
	})
	require.NoError(t, err)
	saleID := uuid.MustParse(resp.ID)
	require.Equal(t, 0, f.batches.batches[b.ID].QuantityRemaining)
	balanceAfterSale := f.customers.customers[c.ID].LoyaltyPoints

	require.NoError(t, f.svc.VoidSale(ctx, saleID, "manager", "customer complaint"))

	stored := f.sales.sales[saleID]
	assert.Equal(t, model.SaleVoided, stored.Status)
	assert.True(t, stored.IsVoided)
	assert.True(t, stored.StockRestored)
	require.NotNil(t, stored.VoidReason)
	assert.Equal(t, "customer complaint", *stored.VoidReason)

	// Stock came back and the batch is sellable again.
	assert.Equal(t, 5, f.batches.batches[b.ID].QuantityRemaining)
	assert.Equal(t, model.BatchActive, f.batches.batches[b.ID].Status)

	// Redeemed points refunded; earned points are not clawed back.
	assert.Equal(t, balanceAfterSale+80, f.customers.customers[c.ID].LoyaltyPoints)

	last := f.dispatcher.notifications[len(f.dispatcher.notifications)-1]
	assert.Equal(t, "sale_voided", last.Kind)
	assert.Equal(t, "high", last.Priority)
}

func TestVoidSaleRetryAfterRefundFailureRestoresOnce(t *testing.T) {
	f := newSaleFixture(nil)
	ctx := context.Background()

	p := seedProduct(f.products, "Embutido", 160)
	b := seedBatch(f.batches, p.ID, 10, 95, daysFromNow(6), time.Now())
	c := seedCustomer(f.customers, 100)
	cid := c.ID.String()

	resp, err := f.svc.CreateSale(ctx, uuid.New(), dto.CreateSaleRequest{
		Items:          []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 4}},
		PaymentMethod:  "cash",
		CustomerID:     &cid,
		PointsToRedeem: 40,
	})
	require.NoError(t, err)
	saleID := uuid.MustParse(resp.ID)
	require.Equal(t, 6, f.batches.batches[b.ID].QuantityRemaining)

	// The customer row vanishes, so the refund fails after the stock
	// already moved back.
	delete(f.customers.customers, c.ID)

	err = f.svc.VoidSale(ctx, saleID, "manager", "duplicate charge")
	require.Error(t, err)
	assert.Equal(t, 10, f.batches.batches[b.ID].QuantityRemaining)
	assert.True(t, f.sales.sales[saleID].StockRestored)
	assert.False(t, f.sales.sales[saleID].IsVoided)

	// The retry must not credit the same allocations a second time.
	err = f.svc.VoidSale(ctx, saleID, "manager", "duplicate charge")
	require.Error(t, err)
	assert.Equal(t, 10, f.batches.batches[b.ID].QuantityRemaining)
	assert.Equal(t, 0, model.NetConsumed(f.batches.usage[b.ID]))
}

func TestVoidSaleTwiceRejected(t *testing.T) {
	f := newSaleFixture(nil)
	ctx := context.Background()

	p := seedProduct(f.products, "Kare-Kare", 320)
	seedBatch(f.batches, p.ID, 3, 200, nil, time.Now())

	resp, err := f.svc.CreateSale(ctx, uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	saleID := uuid.MustParse(resp.ID)

	require.NoError(t, f.svc.VoidSale(ctx, saleID, "manager", "wrong order"))
	err = f.svc.VoidSale(ctx, saleID, "manager", "again")
	assert.ErrorIs(t, err, apierror.ErrAlreadyVoided)
}

func TestCreateSaleInactiveProductRejected(t *testing.T) {
	f := newSaleFixture(nil)

	p := seedProduct(f.products, "Discontinued", 10)
	p.Active = false

	_, err := f.svc.CreateSale(context.Background(), uuid.New(), dto.CreateSaleRequest{
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMethod: "cash",
	})
	assert.ErrorIs(t, err, apierror.ErrValidation)
}
