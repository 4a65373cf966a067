package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
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

// UsageContext identifies who triggered a batch mutation and why; it is
// stamped onto every usage history entry the mutation produces.
type UsageContext struct {
	Actor  string
	Source string // "pos_sale" | "online_order" | "manual" | "system"
	Notes  string
}

// BatchService is the batch ledger: the sole writer of batch quantities and
// of the derived product stock projection.
//
// Every mutating call serializes on a per-product lock, closing the
// check-then-mutate race between concurrent deductions; the repository's
// conditional decrement backs this up at the SQL level.
type BatchService interface {
	CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actor string) (*model.Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	ListBatches(ctx context.Context, filter dto.BatchFilter) ([]model.Batch, int64, error)
	ListUsage(ctx context.Context, batchID uuid.UUID) ([]model.BatchUsage, error)

	// Available reports the total remaining quantity across active batches.
	Available(ctx context.Context, productID uuid.UUID) (int, error)

	// DeductFIFO consumes quantity from the product's active batches in FIFO
	// order (earliest expiry first, no-expiry last, receipt date tiebreak).
	// It mutates nothing when total availability falls short. The returned
	// allocations are the caller's compensation record: Restore reverses
	// them exactly.
	DeductFIFO(ctx context.Context, productID uuid.UUID, quantity int, usage UsageContext) ([]model.BatchAllocation, error)

	// Restore credits every allocation back to its batch, appends a
	// restoration usage entry, and reactivates the batch regardless of its
	// prior state. Callers guard against invoking it twice for the same
	// allocation set (stock_restored flags on sales and orders).
	Restore(ctx context.Context, allocations []model.BatchAllocation, usage UsageContext) error

	// Adjust applies a manual correction (credit) or damage write-off (debit).
	Adjust(ctx context.Context, batchID uuid.UUID, req dto.AdjustBatchRequest, actor string) (*model.Batch, error)

	// MarkExpired flips every active batch with a passed expiry date to
	// expired and recomputes the affected projections. Returns the number of
	// batches flipped.
	MarkExpired(ctx context.Context) (int, error)

	// RecomputeProjection re-derives the product's stock summary from its
	// current active batches. Idempotent.
	RecomputeProjection(ctx context.Context, productID uuid.UUID) error
}

type batchService struct {
	products   repository.ProductRepository
	batches    repository.BatchRepository
	dispatcher AsyncDispatcher
	alertDays  int
	nowFn      func() time.Time

	// Striped per-product locks. All writers of a product's batches funnel
	// through the same stripe, so a deduction's read-compute-write sequence
	// is never interleaved with another writer of the same product.
	locks [64]sync.Mutex
}

func NewBatchService(
	products repository.ProductRepository,
	batches repository.BatchRepository,
	dispatcher AsyncDispatcher,
	alertDays int,
) BatchService {
	if alertDays <= 0 {
		alertDays = 30
	}
	return &batchService{
		products:   products,
		batches:    batches,
		dispatcher: dispatcher,
		alertDays:  alertDays,
		nowFn:      time.Now,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

func (s *batchService) lockFor(productID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(productID[:])
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// ── CreateBatch ───────────────────────────────────────────────────────────────

func (s *batchService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actor string) (*model.Batch, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, apierror.Validationf("invalid product_id: %v", err)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, apierror.Validationf("product %s does not exist", req.ProductID)
	}

	var expiry *time.Time
	if req.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			return nil, apierror.Validationf("invalid expiry_date %q: want YYYY-MM-DD", req.ExpiryDate)
		}
		expiry = &t
	}

	now := s.nowFn()
	received := now
	if req.DateReceived != "" {
		t, err := time.Parse("2006-01-02", req.DateReceived)
		if err != nil {
			return nil, apierror.Validationf("invalid date_received %q: want YYYY-MM-DD", req.DateReceived)
		}
		received = t
	}

	// Stock received now is sellable immediately; a future receipt date
	// leaves the batch pending until its stock actually arrives.
	status := model.BatchActive
	if received.After(now) {
		status = model.BatchPending
	}

	mu := s.lockFor(productID)
	mu.Lock()
	defer mu.Unlock()

	var batch *model.Batch
	txErr := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		num, err := s.batches.NextBatchNumber(ctx, tx)
		if err != nil {
			return err
		}
		batch = &model.Batch{
			ProductID:         productID,
			BatchNumber:       num,
			QuantityReceived:  req.QuantityReceived,
			QuantityRemaining: req.QuantityReceived,
			CostPrice:         req.CostPrice,
			ExpiryDate:        expiry,
			DateReceived:      received,
			Status:            status,
		}
		if err := s.createBatchTx(ctx, tx, batch); err != nil {
			return err
		}
		usage := &model.BatchUsage{
			BatchID:        batch.ID,
			QuantityUsed:   req.QuantityReceived,
			RemainingAfter: req.QuantityReceived,
			AdjustmentType: model.AdjustmentInitial,
			AdjustedBy:     actor,
			Source:         "manual",
			Notes:          req.Notes,
		}
		if err := s.batches.CreateUsageTx(tx, usage); err != nil {
			return err
		}
		return s.recomputeProjectionTx(ctx, tx, productID)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notify(ctx, "Batch received",
		fmt.Sprintf("Batch #%d of %s received (%d units)", batch.BatchNumber, product.Name, batch.QuantityReceived),
		"normal", "batch_created", map[string]string{
			"batch_id":   batch.ID.String(),
			"product_id": productID.String(),
		})
	return batch, nil
}

// createBatchTx inserts through the tx when present, falling back to the
// repository's own connection in unit-test mode.
func (s *batchService) createBatchTx(ctx context.Context, tx *gorm.DB, b *model.Batch) error {
	if tx == nil {
		return s.batches.Create(ctx, b)
	}
	return tx.Create(b).Error
}

func (s *batchService) GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	b, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("batch %s", id)
	}
	return b, nil
}

func (s *batchService) ListBatches(ctx context.Context, filter dto.BatchFilter) ([]model.Batch, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	return s.batches.List(ctx, filter)
}

func (s *batchService) ListUsage(ctx context.Context, batchID uuid.UUID) ([]model.BatchUsage, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		return nil, apierror.NotFoundf("batch %s", batchID)
	}
	return s.batches.ListUsage(ctx, batchID)
}

func (s *batchService) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	batches, err := s.batches.ActiveByProduct(ctx, nil, productID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range batches {
		total += b.QuantityRemaining
	}
	return total, nil
}

// ── DeductFIFO ────────────────────────────────────────────────────────────────

func (s *batchService) DeductFIFO(ctx context.Context, productID uuid.UUID, quantity int, usage UsageContext) ([]model.BatchAllocation, error) {
	if quantity <= 0 {
		return nil, apierror.Validationf("deduction quantity must be positive, got %d", quantity)
	}

	mu := s.lockFor(productID)
	mu.Lock()
	defer mu.Unlock()

	var allocations []model.BatchAllocation
	txErr := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		candidates, err := s.batches.ActiveByProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		// Aggregate check first: a shortfall must mutate nothing.
		available := 0
		for _, b := range candidates {
			available += b.QuantityRemaining
		}
		if available < quantity {
			return &apierror.InsufficientStockError{
				ProductID: productID,
				Requested: quantity,
				Available: available,
			}
		}

		remaining := quantity
		for i := range candidates {
			if remaining == 0 {
				break
			}
			b := &candidates[i]
			if b.QuantityRemaining == 0 {
				continue
			}
			take := b.QuantityRemaining
			if take > remaining {
				take = remaining
			}

			after, ok, err := s.batches.DeductTx(tx, b.ID, take)
			if err != nil {
				return err
			}
			if !ok {
				// The conditional decrement only rejects when another writer
				// slipped past the product lock; treat it as a shortfall.
				return &apierror.InsufficientStockError{
					ProductID: productID,
					Requested: quantity,
					Available: available,
				}
			}

			if err := s.batches.CreateUsageTx(tx, &model.BatchUsage{
				BatchID:        b.ID,
				QuantityUsed:   take,
				RemainingAfter: after,
				AdjustmentType: model.AdjustmentSale,
				AdjustedBy:     usage.Actor,
				Source:         usage.Source,
				Notes:          usage.Notes,
			}); err != nil {
				return err
			}
			if after == 0 {
				if err := s.batches.SetStatusTx(tx, b.ID, model.BatchDepleted); err != nil {
					return err
				}
				s.notifyDepleted(ctx, b)
			}

			allocations = append(allocations, model.BatchAllocation{
				BatchID:    b.ID,
				Quantity:   take,
				CostPrice:  b.CostPrice,
				ExpiryDate: b.ExpiryDate,
			})
			remaining -= take
		}

		return s.recomputeProjectionTx(ctx, tx, productID)
	})
	if txErr != nil {
		return nil, txErr
	}
	return allocations, nil
}

// ── Restore ───────────────────────────────────────────────────────────────────

func (s *batchService) Restore(ctx context.Context, allocations []model.BatchAllocation, usage UsageContext) error {
	if len(allocations) == 0 {
		return nil
	}

	// Group by product so each product's compensation runs under its lock
	// and triggers exactly one projection recompute.
	type productGroup struct {
		productID uuid.UUID
		allocs    []model.BatchAllocation
	}
	groups := make(map[uuid.UUID]*productGroup)
	for _, a := range allocations {
		b, err := s.batches.FindByID(ctx, a.BatchID)
		if err != nil {
			return apierror.NotFoundf("batch %s referenced by allocation", a.BatchID)
		}
		g, ok := groups[b.ProductID]
		if !ok {
			g = &productGroup{productID: b.ProductID}
			groups[b.ProductID] = g
		}
		g.allocs = append(g.allocs, a)
	}

	ordered := make([]*productGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].productID.String() < ordered[j].productID.String()
	})

	for _, g := range ordered {
		if err := s.restoreProduct(ctx, g.productID, g.allocs, usage); err != nil {
			return err
		}
	}
	return nil
}

func (s *batchService) restoreProduct(ctx context.Context, productID uuid.UUID, allocs []model.BatchAllocation, usage UsageContext) error {
	mu := s.lockFor(productID)
	mu.Lock()
	defer mu.Unlock()

	return runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		for _, a := range allocs {
			after, err := s.batches.RestoreTx(tx, a.BatchID, a.Quantity)
			if err != nil {
				return err
			}
			// Restoration reactivates even depleted or expired batches; the
			// stock physically came back.
			if err := s.batches.SetStatusTx(tx, a.BatchID, model.BatchActive); err != nil {
				return err
			}
			if err := s.batches.CreateUsageTx(tx, &model.BatchUsage{
				BatchID:        a.BatchID,
				QuantityUsed:   a.Quantity,
				RemainingAfter: after,
				AdjustmentType: model.AdjustmentRestoration,
				AdjustedBy:     usage.Actor,
				Source:         usage.Source,
				Notes:          usage.Notes,
			}); err != nil {
				return err
			}
		}
		return s.recomputeProjectionTx(ctx, tx, productID)
	})
}

// ── Adjust ────────────────────────────────────────────────────────────────────

func (s *batchService) Adjust(ctx context.Context, batchID uuid.UUID, req dto.AdjustBatchRequest, actor string) (*model.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, apierror.NotFoundf("batch %s", batchID)
	}

	adjType := model.AdjustmentType(req.AdjustmentType)

	mu := s.lockFor(batch.ProductID)
	mu.Lock()
	defer mu.Unlock()

	txErr := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		// The post-adjustment remaining comes back from the update itself;
		// a separate read would not see the uncommitted change.
		var after int
		switch adjType {
		case model.AdjustmentDamage:
			n, ok, err := s.batches.DeductTx(tx, batchID, req.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &apierror.InsufficientStockError{
					ProductID: batch.ProductID,
					Requested: req.Quantity,
					Available: batch.QuantityRemaining,
				}
			}
			after = n
			if after == 0 {
				if err := s.batches.SetStatusTx(tx, batchID, model.BatchDepleted); err != nil {
					return err
				}
			}
		case model.AdjustmentCorrection:
			n, err := s.batches.RestoreTx(tx, batchID, req.Quantity)
			if err != nil {
				return err
			}
			after = n
			if batch.Status == model.BatchDepleted {
				if err := s.batches.SetStatusTx(tx, batchID, model.BatchActive); err != nil {
					return err
				}
			}
		default:
			return apierror.Validationf("unsupported adjustment type %q", req.AdjustmentType)
		}

		if err := s.batches.CreateUsageTx(tx, &model.BatchUsage{
			BatchID:        batchID,
			QuantityUsed:   req.Quantity,
			RemainingAfter: after,
			AdjustmentType: adjType,
			AdjustedBy:     actor,
			Source:         "manual",
			Notes:          req.Notes,
		}); err != nil {
			return err
		}
		return s.recomputeProjectionTx(ctx, tx, batch.ProductID)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.batches.FindByID(ctx, batchID)
}

// ── MarkExpired ───────────────────────────────────────────────────────────────

func (s *batchService) MarkExpired(ctx context.Context) (int, error) {
	now := s.nowFn()
	expired, err := s.batches.ExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	byProduct := make(map[uuid.UUID][]model.Batch)
	for _, b := range expired {
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}

	flipped := 0
	for productID, batches := range byProduct {
		mu := s.lockFor(productID)
		mu.Lock()
		err := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
			for _, b := range batches {
				// Remaining stock is written off: it left the sellable pool,
				// so the usage ledger records the loss like any consumption.
				if b.QuantityRemaining > 0 {
					after, ok, err := s.batches.DeductTx(tx, b.ID, b.QuantityRemaining)
					if err != nil {
						return err
					}
					if ok {
						if err := s.batches.CreateUsageTx(tx, &model.BatchUsage{
							BatchID:        b.ID,
							QuantityUsed:   b.QuantityRemaining,
							RemainingAfter: after,
							AdjustmentType: model.AdjustmentExpiry,
							AdjustedBy:     "system",
							Source:         "system",
							Notes:          "expired stock written off",
						}); err != nil {
							return err
						}
					}
				}
				if err := s.batches.SetStatusTx(tx, b.ID, model.BatchExpired); err != nil {
					return err
				}
				flipped++
				s.notify(ctx, "Batch expired",
					fmt.Sprintf("Batch #%d expired with %d units remaining", b.BatchNumber, b.QuantityRemaining),
					"high", "batch_expired", map[string]string{
						"batch_id":   b.ID.String(),
						"product_id": productID.String(),
					})
			}
			return s.recomputeProjectionTx(ctx, tx, productID)
		})
		mu.Unlock()
		if err != nil {
			return flipped, err
		}
	}
	return flipped, nil
}

// ── Projection ────────────────────────────────────────────────────────────────

func (s *batchService) RecomputeProjection(ctx context.Context, productID uuid.UUID) error {
	mu := s.lockFor(productID)
	mu.Lock()
	defer mu.Unlock()
	return runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		return s.recomputeProjectionTx(ctx, tx, productID)
	})
}

// recomputeProjectionTx derives the product's stock summary from its active
// batches. Pure function of current batch state; runs after every mutation.
func (s *batchService) recomputeProjectionTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	batches, err := s.batches.ActiveByProduct(ctx, tx, productID)
	if err != nil {
		return err
	}

	now := s.nowFn()
	horizon := time.Duration(s.alertDays) * 24 * time.Hour

	proj := model.StockProjection{CostPrice: decimal.Zero}
	for i := range batches {
		b := &batches[i]
		proj.TotalStock += b.QuantityRemaining
		if b.ExpiryDate != nil {
			if proj.OldestBatchExpiry == nil || b.ExpiryDate.Before(*proj.OldestBatchExpiry) {
				proj.OldestBatchExpiry = b.ExpiryDate
			}
			if proj.NewestBatchExpiry == nil || b.ExpiryDate.After(*proj.NewestBatchExpiry) {
				proj.NewestBatchExpiry = b.ExpiryDate
			}
		}
		if b.QuantityRemaining > 0 && b.ExpiresWithin(now, horizon) {
			proj.ExpiryAlert = true
		}
	}
	// FIFO costing: the cost of the batch currently being consumed, i.e. the
	// first active batch in FIFO order with stock remaining.
	for i := range batches {
		if batches[i].QuantityRemaining > 0 {
			proj.CostPrice = batches[i].CostPrice
			break
		}
	}

	return s.products.UpdateProjectionTx(tx, productID, proj)
}

// ── Notifications ─────────────────────────────────────────────────────────────
// Batch events are fire-and-forget: a dead queue must never fail a deduction.

func (s *batchService) notify(ctx context.Context, title, message, priority, kind string, metadata map[string]string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Notify(ctx, title, message, priority, kind, metadata); err != nil {
		log.Warn().Err(err).Str("type", kind).Msg("batch ledger: failed to enqueue notification")
	}
}

func (s *batchService) notifyDepleted(ctx context.Context, b *model.Batch) {
	s.notify(ctx, "Batch depleted",
		fmt.Sprintf("Batch #%d is fully consumed", b.BatchNumber),
		"normal", "batch_depleted", map[string]string{
			"batch_id":   b.ID.String(),
			"product_id": b.ProductID.String(),
		})
}
