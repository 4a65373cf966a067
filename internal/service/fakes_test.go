package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory repositories ───────────────────────────────────────────────────
// All fakes return a nil *gorm.DB so runTx executes the closure directly.
// They are not safe for concurrent use; tests drive them single-threaded.

type fakeProductRepo struct {
	products    map[uuid.UUID]*model.Product
	projections map[uuid.UUID]model.StockProjection
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products:    make(map[uuid.UUID]*model.Product),
		projections: make(map[uuid.UUID]model.StockProjection),
	}
}

func (r *fakeProductRepo) Create(_ context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.products[p.ID] = p
	return nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return p, nil
}

func (r *fakeProductRepo) List(_ context.Context, _ dto.ProductFilter) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (r *fakeProductRepo) UpdateProjectionTx(_ *gorm.DB, id uuid.UUID, proj model.StockProjection) error {
	r.projections[id] = proj
	if p, ok := r.products[id]; ok {
		p.TotalStock = proj.TotalStock
		p.CostPrice = proj.CostPrice
		p.OldestBatchExpiry = proj.OldestBatchExpiry
		p.NewestBatchExpiry = proj.NewestBatchExpiry
		p.ExpiryAlert = proj.ExpiryAlert
	}
	return nil
}

func (r *fakeProductRepo) DB() *gorm.DB { return nil }

var _ repository.ProductRepository = (*fakeProductRepo)(nil)

type fakeBatchRepo struct {
	batches  map[uuid.UUID]*model.Batch
	usage    map[uuid.UUID][]model.BatchUsage
	batchSeq int
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches: make(map[uuid.UUID]*model.Batch),
		usage:   make(map[uuid.UUID][]model.BatchUsage),
	}
}

func (r *fakeBatchRepo) Create(_ context.Context, b *model.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.batches[b.ID] = b
	return nil
}

func (r *fakeBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) List(_ context.Context, filter dto.BatchFilter) ([]model.Batch, int64, error) {
	var out []model.Batch
	for _, b := range r.batches {
		if filter.ProductID != "" && b.ProductID.String() != filter.ProductID {
			continue
		}
		if filter.Status != "" && filter.Status != "all" && string(b.Status) != filter.Status {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateReceived.Before(out[j].DateReceived) })
	return out, int64(len(out)), nil
}

func (r *fakeBatchRepo) ActiveByProduct(_ context.Context, _ *gorm.DB, productID uuid.UUID) ([]model.Batch, error) {
	var out []model.Batch
	for _, b := range r.batches {
		if b.ProductID == productID && b.Status == model.BatchActive {
			out = append(out, *b)
		}
	}
	// FIFO order: expiry ascending with no-expiry last, receipt date tiebreak.
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case ei == nil && ej == nil:
			return out[i].DateReceived.Before(out[j].DateReceived)
		case ei == nil:
			return false
		case ej == nil:
			return true
		case ei.Equal(*ej):
			return out[i].DateReceived.Before(out[j].DateReceived)
		default:
			return ei.Before(*ej)
		}
	})
	return out, nil
}

func (r *fakeBatchRepo) DeductTx(_ *gorm.DB, id uuid.UUID, qty int) (int, bool, error) {
	b, ok := r.batches[id]
	if !ok || b.QuantityRemaining < qty {
		return 0, false, nil
	}
	b.QuantityRemaining -= qty
	return b.QuantityRemaining, true, nil
}

func (r *fakeBatchRepo) RestoreTx(_ *gorm.DB, id uuid.UUID, qty int) (int, error) {
	b, ok := r.batches[id]
	if !ok {
		return 0, errors.New("record not found")
	}
	b.QuantityRemaining += qty
	return b.QuantityRemaining, nil
}

func (r *fakeBatchRepo) SetStatusTx(_ *gorm.DB, id uuid.UUID, status model.BatchStatus) error {
	b, ok := r.batches[id]
	if !ok {
		return errors.New("record not found")
	}
	b.Status = status
	return nil
}

func (r *fakeBatchRepo) CreateUsageTx(_ *gorm.DB, u *model.BatchUsage) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.usage[u.BatchID] = append(r.usage[u.BatchID], *u)
	return nil
}

func (r *fakeBatchRepo) ListUsage(_ context.Context, batchID uuid.UUID) ([]model.BatchUsage, error) {
	return r.usage[batchID], nil
}

func (r *fakeBatchRepo) ExpiredActive(_ context.Context, asOf time.Time) ([]model.Batch, error) {
	var out []model.Batch
	for _, b := range r.batches {
		if b.Status == model.BatchActive && b.ExpiryDate != nil && b.ExpiryDate.Before(asOf) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) NextBatchNumber(_ context.Context, _ *gorm.DB) (int, error) {
	r.batchSeq++
	return r.batchSeq, nil
}

func (r *fakeBatchRepo) DB() *gorm.DB { return nil }

var _ repository.BatchRepository = (*fakeBatchRepo)(nil)

type fakeSaleRepo struct {
	sales      map[uuid.UUID]*model.Sale
	receiptSeq int
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{sales: make(map[uuid.UUID]*model.Sale), receiptSeq: 999}
}

func (r *fakeSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	for i := range s.Items {
		if s.Items[i].ID == uuid.Nil {
			s.Items[i].ID = uuid.New()
		}
		s.Items[i].SaleID = s.ID
	}
	r.sales[s.ID] = s
	return nil
}

func (r *fakeSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return s, nil
}

func (r *fakeSaleRepo) MarkVoidedTx(_ *gorm.DB, s *model.Sale) error {
	stored, ok := r.sales[s.ID]
	if !ok {
		return errors.New("record not found")
	}
	stored.Status = s.Status
	stored.IsVoided = s.IsVoided
	stored.StockRestored = s.StockRestored
	stored.VoidReason = s.VoidReason
	stored.VoidedBy = s.VoidedBy
	stored.VoidedAt = s.VoidedAt
	return nil
}

func (r *fakeSaleRepo) ClaimStockRestored(_ context.Context, id uuid.UUID) (bool, error) {
	s, ok := r.sales[id]
	if !ok {
		return false, errors.New("record not found")
	}
	if s.StockRestored {
		return false, nil
	}
	s.StockRestored = true
	return true, nil
}

func (r *fakeSaleRepo) UpdateReceiptPath(_ context.Context, id uuid.UUID, path string) error {
	s, ok := r.sales[id]
	if !ok {
		return errors.New("record not found")
	}
	s.ReceiptPath = &path
	return nil
}

func (r *fakeSaleRepo) NextReceiptNumber(_ context.Context, _ *gorm.DB) (int, error) {
	r.receiptSeq++
	return r.receiptSeq, nil
}

func (r *fakeSaleRepo) List(_ context.Context, _ dto.SaleFilter) ([]model.Sale, int64, error) {
	var out []model.Sale
	for _, s := range r.sales {
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*fakeSaleRepo)(nil)

type fakeOrderRepo struct {
	orders   map[uuid.UUID]*model.Order
	history  map[uuid.UUID][]model.OrderStatusChange
	orderSeq int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[uuid.UUID]*model.Order),
		history:  make(map[uuid.UUID][]model.OrderStatusChange),
		orderSeq: 999,
	}
}

func (r *fakeOrderRepo) Create(_ context.Context, _ *gorm.DB, o *model.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	o.StatusHistory = r.history[id]
	return o, nil
}

func (r *fakeOrderRepo) SaveTx(_ *gorm.DB, o *model.Order) error {
	if _, ok := r.orders[o.ID]; !ok {
		return errors.New("record not found")
	}
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) ClaimStockRestored(_ context.Context, id uuid.UUID) (bool, error) {
	o, ok := r.orders[id]
	if !ok {
		return false, errors.New("record not found")
	}
	if o.StockRestored {
		return false, nil
	}
	o.StockRestored = true
	return true, nil
}

func (r *fakeOrderRepo) ClaimPointsAwardedTx(_ *gorm.DB, id uuid.UUID) (bool, error) {
	o, ok := r.orders[id]
	if !ok {
		return false, errors.New("record not found")
	}
	if o.PointsAwarded {
		return false, nil
	}
	o.PointsAwarded = true
	return true, nil
}

func (r *fakeOrderRepo) AppendStatusTx(_ *gorm.DB, change *model.OrderStatusChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	change.CreatedAt = time.Now()
	r.history[change.OrderID] = append(r.history[change.OrderID], *change)
	return nil
}

func (r *fakeOrderRepo) NextOrderNumber(_ context.Context, _ *gorm.DB) (int, error) {
	r.orderSeq++
	return r.orderSeq, nil
}

func (r *fakeOrderRepo) List(_ context.Context, _ dto.OrderFilter) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range r.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) Stalled(_ context.Context, status model.OrderStatus, payment *model.PaymentStatus, cutoff time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range r.orders {
		if o.Status != status || !o.UpdatedAt.Before(cutoff) {
			continue
		}
		if payment != nil && o.PaymentStatus != *payment {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOrderRepo) DB() *gorm.DB { return nil }

var _ repository.OrderRepository = (*fakeOrderRepo)(nil)

type fakeCustomerRepo struct {
	customers map[uuid.UUID]*model.Customer
	txns      map[uuid.UUID][]model.PointsTransaction
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{
		customers: make(map[uuid.UUID]*model.Customer),
		txns:      make(map[uuid.UUID][]model.PointsTransaction),
	}
}

func (r *fakeCustomerRepo) Create(_ context.Context, c *model.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.customers[c.ID] = c
	return nil
}

func (r *fakeCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCustomerRepo) AddPointsTx(_ *gorm.DB, id uuid.UUID, delta int) (int, bool, error) {
	c, ok := r.customers[id]
	if !ok {
		return 0, false, nil
	}
	if delta < 0 && c.LoyaltyPoints < -delta {
		return 0, false, nil
	}
	c.LoyaltyPoints += delta
	return c.LoyaltyPoints, true, nil
}

func (r *fakeCustomerRepo) CreateTransactionTx(_ *gorm.DB, t *model.PointsTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.txns[t.CustomerID] = append(r.txns[t.CustomerID], *t)
	return nil
}

func (r *fakeCustomerRepo) ListTransactions(_ context.Context, customerID uuid.UUID, _ dto.PointsHistoryFilter) ([]model.PointsTransaction, int64, error) {
	txns := r.txns[customerID]
	return txns, int64(len(txns)), nil
}

func (r *fakeCustomerRepo) DB() *gorm.DB { return nil }

var _ repository.CustomerRepository = (*fakeCustomerRepo)(nil)

// ── Collaborator fakes ───────────────────────────────────────────────────────

type recordedNotification struct {
	Title    string
	Priority string
	Kind     string
	Metadata map[string]string
}

type fakeDispatcher struct {
	notifications []recordedNotification
	receipts      []string
	notifyErr     error
}

func (d *fakeDispatcher) Notify(_ context.Context, title, _, priority, kind string, metadata map[string]string) error {
	if d.notifyErr != nil {
		return d.notifyErr
	}
	d.notifications = append(d.notifications, recordedNotification{
		Title: title, Priority: priority, Kind: kind, Metadata: metadata,
	})
	return nil
}

func (d *fakeDispatcher) EnqueueReceipt(_ context.Context, saleID string) error {
	d.receipts = append(d.receipts, saleID)
	return nil
}

var _ AsyncDispatcher = (*fakeDispatcher)(nil)

type fakePromo struct {
	discount decimal.Decimal
	err      error
}

func (p *fakePromo) Quote(_ context.Context, _ *uuid.UUID, _ decimal.Decimal) (decimal.Decimal, error) {
	return p.discount, p.err
}

var _ DiscountEngine = (*fakePromo)(nil)

// ── Seed helpers ─────────────────────────────────────────────────────────────

func seedProduct(repo *fakeProductRepo, name string, price float64) *model.Product {
	p := &model.Product{
		ID:           uuid.New(),
		SKU:          "SKU-" + name,
		Name:         name,
		SellingPrice: decimal.NewFromFloat(price),
		Active:       true,
	}
	repo.products[p.ID] = p
	return p
}

func seedBatch(repo *fakeBatchRepo, productID uuid.UUID, qty int, cost float64, expiry *time.Time, received time.Time) *model.Batch {
	repo.batchSeq++
	b := &model.Batch{
		ID:                uuid.New(),
		ProductID:         productID,
		BatchNumber:       repo.batchSeq,
		QuantityReceived:  qty,
		QuantityRemaining: qty,
		CostPrice:         decimal.NewFromFloat(cost),
		ExpiryDate:        expiry,
		DateReceived:      received,
		Status:            model.BatchActive,
	}
	repo.batches[b.ID] = b
	return b
}

func seedCustomer(repo *fakeCustomerRepo, points int) *model.Customer {
	email := "customer@example.com"
	c := &model.Customer{
		ID:            uuid.New(),
		Name:          "Test Customer",
		Email:         &email,
		LoyaltyPoints: points,
		Active:        true,
	}
	repo.customers[c.ID] = c
	return c
}

func daysFromNow(d int) *time.Time {
	t := time.Now().AddDate(0, 0, d)
	return &t
}
