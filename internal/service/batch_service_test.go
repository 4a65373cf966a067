package service

import (
	"context"
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

// staleBatchReads serves FindByID from a frozen copy of one batch, the way a
// read on the base connection cannot see a quantity change still uncommitted
// on the caller's transaction.
type staleBatchReads struct {
	*fakeBatchRepo
	frozen *model.Batch
}

func (r *staleBatchReads) freeze(id uuid.UUID) {
	cp := *r.batches[id]
	r.frozen = &cp
}

func (r *staleBatchReads) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	if r.frozen != nil && r.frozen.ID == id {
		cp := *r.frozen
		return &cp, nil
	}
	return r.fakeBatchRepo.FindByID(ctx, id)
}

func newBatchFixture() (*fakeProductRepo, *fakeBatchRepo, *fakeDispatcher, BatchService) {
	products := newFakeProductRepo()
	batches := newFakeBatchRepo()
	dispatcher := &fakeDispatcher{}
	svc := NewBatchService(products, batches, dispatcher, 30)
	return products, batches, dispatcher, svc
}

func TestDeductFIFOConsumesEarliestExpiryFirst(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Noodles", 55)
	// Received later but expires sooner: must be consumed first.
	soon := seedBatch(batches, p.ID, 10, 20, daysFromNow(5), time.Now().AddDate(0, 0, -1))
	later := seedBatch(batches, p.ID, 10, 25, daysFromNow(60), time.Now().AddDate(0, 0, -10))

	allocs, err := svc.DeductFIFO(ctx, p.ID, 12, UsageContext{Actor: "tester", Source: "pos_sale"})
	require.NoError(t, err)

	require.Len(t, allocs, 2)
	assert.Equal(t, soon.ID, allocs[0].BatchID)
	assert.Equal(t, 10, allocs[0].Quantity)
	assert.Equal(t, later.ID, allocs[1].BatchID)
	assert.Equal(t, 2, allocs[1].Quantity)

	assert.Equal(t, 0, batches.batches[soon.ID].QuantityRemaining)
	assert.Equal(t, model.BatchDepleted, batches.batches[soon.ID].Status)
	assert.Equal(t, 8, batches.batches[later.ID].QuantityRemaining)
	assert.Equal(t, model.BatchActive, batches.batches[later.ID].Status)
}

func TestDeductFIFONoExpiryConsumedLast(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Canned Tuna", 42)
	noExpiry := seedBatch(batches, p.ID, 10, 30, nil, time.Now().AddDate(0, 0, -30))
	dated := seedBatch(batches, p.ID, 10, 32, daysFromNow(90), time.Now().AddDate(0, 0, -1))

	allocs, err := svc.DeductFIFO(ctx, p.ID, 5, UsageContext{Actor: "tester", Source: "pos_sale"})
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assert.Equal(t, dated.ID, allocs[0].BatchID)
	assert.Equal(t, 10, batches.batches[noExpiry.ID].QuantityRemaining)
}

func TestDeductFIFOShortfallMutatesNothing(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Siopao", 35)
	b1 := seedBatch(batches, p.ID, 3, 10, daysFromNow(5), time.Now())
	b2 := seedBatch(batches, p.ID, 4, 12, daysFromNow(10), time.Now())

	allocs, err := svc.DeductFIFO(ctx, p.ID, 8, UsageContext{Actor: "tester", Source: "pos_sale"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)
	assert.Nil(t, allocs)

	var stockErr *apierror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 8, stockErr.Requested)
	assert.Equal(t, 7, stockErr.Available)

	// Nothing moved, nothing recorded.
	assert.Equal(t, 3, batches.batches[b1.ID].QuantityRemaining)
	assert.Equal(t, 4, batches.batches[b2.ID].QuantityRemaining)
	assert.Empty(t, batches.usage[b1.ID])
	assert.Empty(t, batches.usage[b2.ID])
}

func TestDeductThenRestoreRoundTrip(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Milk Tea", 95)
	b := seedBatch(batches, p.ID, 6, 40, daysFromNow(7), time.Now())

	usage := UsageContext{Actor: "tester", Source: "pos_sale"}
	allocs, err := svc.DeductFIFO(ctx, p.ID, 6, usage)
	require.NoError(t, err)
	assert.Equal(t, model.BatchDepleted, batches.batches[b.ID].Status)

	err = svc.Restore(ctx, allocs, UsageContext{Actor: "tester", Source: "pos_sale", Notes: "void"})
	require.NoError(t, err)

	// Restored stock reactivates the batch and the history nets to zero.
	assert.Equal(t, 6, batches.batches[b.ID].QuantityRemaining)
	assert.Equal(t, model.BatchActive, batches.batches[b.ID].Status)
	assert.Equal(t, 0, model.NetConsumed(batches.usage[b.ID]))
	assert.Equal(t, 6, products.projections[p.ID].TotalStock)
}

func TestConservationAcrossMixedMutations(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Rice", 50)
	b := seedBatch(batches, p.ID, 100, 38, nil, time.Now())

	usage := UsageContext{Actor: "tester", Source: "pos_sale"}
	allocs1, err := svc.DeductFIFO(ctx, p.ID, 30, usage)
	require.NoError(t, err)
	_, err = svc.DeductFIFO(ctx, p.ID, 20, usage)
	require.NoError(t, err)
	require.NoError(t, svc.Restore(ctx, allocs1, usage))

	stored := batches.batches[b.ID]
	net := model.NetConsumed(batches.usage[b.ID])
	assert.Equal(t, stored.QuantityReceived-stored.QuantityRemaining, net)
	assert.Equal(t, 80, stored.QuantityRemaining)
}

func TestAdjustDamageAndCorrection(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Eggs", 12)
	b := seedBatch(batches, p.ID, 10, 6, daysFromNow(14), time.Now())

	damaged, err := svc.Adjust(ctx, b.ID, dto.AdjustBatchRequest{
		Quantity: 4, AdjustmentType: "damage", Notes: "dropped tray",
	}, "manager")
	require.NoError(t, err)
	assert.Equal(t, 6, damaged.QuantityRemaining)

	corrected, err := svc.Adjust(ctx, b.ID, dto.AdjustBatchRequest{
		Quantity: 2, AdjustmentType: "correction", Notes: "recount",
	}, "manager")
	require.NoError(t, err)
	assert.Equal(t, 8, corrected.QuantityRemaining)

	// Write-off beyond remaining is rejected like a sale shortfall.
	_, err = svc.Adjust(ctx, b.ID, dto.AdjustBatchRequest{
		Quantity: 99, AdjustmentType: "damage", Notes: "flood",
	}, "manager")
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)

	entries, err := svc.ListUsage(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AdjustmentDamage, entries[0].AdjustmentType)
	assert.Equal(t, model.AdjustmentCorrection, entries[1].AdjustmentType)
}

func TestAdjustDamageToZeroDepletesBatch(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Bread", 45)
	b := seedBatch(batches, p.ID, 5, 18, daysFromNow(3), time.Now())

	_, err := svc.Adjust(ctx, b.ID, dto.AdjustBatchRequest{
		Quantity: 5, AdjustmentType: "damage", Notes: "mold",
	}, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.BatchDepleted, batches.batches[b.ID].Status)
}

func TestRestoreUsageRecordsPostRestoreRemaining(t *testing.T) {
	products := newFakeProductRepo()
	batches := newFakeBatchRepo()
	stale := &staleBatchReads{fakeBatchRepo: batches}
	svc := NewBatchService(products, stale, &fakeDispatcher{}, 30)
	ctx := context.Background()

	p := seedProduct(products, "Butter", 95)
	b := seedBatch(batches, p.ID, 10, 55, daysFromNow(20), time.Now())

	usage := UsageContext{Actor: "tester", Source: "pos_sale"}
	allocs, err := svc.DeductFIFO(ctx, p.ID, 4, usage)
	require.NoError(t, err)

	// Reads lag behind from here on; the restoration entry must still
	// record the quantity the increment itself produced.
	stale.freeze(b.ID)
	require.NoError(t, svc.Restore(ctx, allocs, usage))

	entries := batches.usage[b.ID]
	require.Len(t, entries, 2)
	assert.Equal(t, model.AdjustmentRestoration, entries[1].AdjustmentType)
	assert.Equal(t, 10, entries[1].RemainingAfter)
}

func TestAdjustUsageRecordsPostAdjustmentRemaining(t *testing.T) {
	products := newFakeProductRepo()
	batches := newFakeBatchRepo()
	stale := &staleBatchReads{fakeBatchRepo: batches}
	svc := NewBatchService(products, stale, &fakeDispatcher{}, 30)
	ctx := context.Background()

	p := seedProduct(products, "Flour", 65)
	b := seedBatch(batches, p.ID, 10, 30, nil, time.Now())
	stale.freeze(b.ID)

	_, err := svc.Adjust(ctx, b.ID, dto.AdjustBatchRequest{
		Quantity: 4, AdjustmentType: "damage", Notes: "recount",
	}, "manager")
	require.NoError(t, err)

	entries := batches.usage[b.ID]
	require.Len(t, entries, 1)
	assert.Equal(t, model.AdjustmentDamage, entries[0].AdjustmentType)
	assert.Equal(t, 6, entries[0].RemainingAfter)
}

func TestMarkExpiredFlipsAndNotifies(t *testing.T) {
	products, batches, dispatcher, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Yogurt", 60)
	past := time.Now().AddDate(0, 0, -2)
	expired := seedBatch(batches, p.ID, 8, 25, &past, time.Now().AddDate(0, 0, -20))
	fresh := seedBatch(batches, p.ID, 8, 25, daysFromNow(40), time.Now())

	count, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, model.BatchExpired, batches.batches[expired.ID].Status)
	assert.Equal(t, model.BatchActive, batches.batches[fresh.ID].Status)
	// Expired stock leaves the projection.
	assert.Equal(t, 8, products.projections[p.ID].TotalStock)

	// The remaining units are written off and the loss is ledgered.
	assert.Equal(t, 0, batches.batches[expired.ID].QuantityRemaining)
	entries := batches.usage[expired.ID]
	require.Len(t, entries, 1)
	assert.Equal(t, model.AdjustmentExpiry, entries[0].AdjustmentType)
	assert.Equal(t, 8, entries[0].QuantityUsed)
	assert.Equal(t, 0, entries[0].RemainingAfter)
	assert.Equal(t, 8, model.NetConsumed(entries))

	require.NotEmpty(t, dispatcher.notifications)
	last := dispatcher.notifications[len(dispatcher.notifications)-1]
	assert.Equal(t, "batch_expired", last.Kind)
	assert.Equal(t, "high", last.Priority)
}

func TestProjectionUsesFIFOCostAndExpiryAlert(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Cheese", 150)
	seedBatch(batches, p.ID, 4, 80, daysFromNow(10), time.Now().AddDate(0, 0, -5)) // inside alert window
	seedBatch(batches, p.ID, 6, 95, daysFromNow(120), time.Now())

	require.NoError(t, svc.RecomputeProjection(ctx, p.ID))

	proj := products.projections[p.ID]
	assert.Equal(t, 10, proj.TotalStock)
	assert.True(t, proj.ExpiryAlert)
	// Costing follows the batch currently being consumed.
	assert.True(t, proj.CostPrice.Equal(decimal.NewFromInt(80)), "cost %s", proj.CostPrice)
	require.NotNil(t, proj.OldestBatchExpiry)
	require.NotNil(t, proj.NewestBatchExpiry)
	assert.True(t, proj.OldestBatchExpiry.Before(*proj.NewestBatchExpiry))
}

func TestCreateBatchFutureReceiptStaysPending(t *testing.T) {
	products, batches, _, svc := newBatchFixture()
	ctx := context.Background()

	p := seedProduct(products, "Coffee", 110)
	future := time.Now().AddDate(0, 0, 7).Format("2006-01-02")

	b, err := svc.CreateBatch(ctx, dto.CreateBatchRequest{
		ProductID:        p.ID.String(),
		QuantityReceived: 24,
		CostPrice:        decimal.NewFromInt(70),
		DateReceived:     future,
	}, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.BatchPending, b.Status)

	// Pending stock is not sellable.
	available, err := svc.Available(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, available)

	entries := batches.usage[b.ID]
	require.Len(t, entries, 1)
	assert.Equal(t, model.AdjustmentInitial, entries[0].AdjustmentType)
	assert.Equal(t, 24, entries[0].RemainingAfter)
}

func TestDeductFIFORejectsNonPositiveQuantity(t *testing.T) {
	products, _, _, svc := newBatchFixture()
	p := seedProduct(products, "Juice", 30)

	_, err := svc.DeductFIFO(context.Background(), p.ID, 0, UsageContext{Actor: "tester", Source: "pos_sale"})
	assert.ErrorIs(t, err, apierror.ErrValidation)
}
