package repository

import (
	"context"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository is the data access contract for stock batches and their
// append-only usage history. Services depend on this interface, not on the
// concrete GORM implementation, enabling clean unit testing via stubs.
//
// The *Tx methods are called inside caller-owned transactions; callers must
// pass the tx instance (nil in unit-test mode, see service.runTx).
type BatchRepository interface {
	Create(ctx context.Context, b *model.Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	List(ctx context.Context, filter dto.BatchFilter) ([]model.Batch, int64, error)

	// ActiveByProduct returns the product's active batches in FIFO order:
	// expiry ascending with no-expiry batches last, ties broken by
	// date_received ascending.
	ActiveByProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Batch, error)

	// DeductTx atomically decrements quantity_remaining, succeeding only if
	// remaining >= qty. Returns the post-decrement remaining read back from
	// the same statement and false when the guard rejects the decrement.
	DeductTx(tx *gorm.DB, id uuid.UUID, qty int) (int, bool, error)
	// RestoreTx increments quantity_remaining by qty and returns the
	// post-increment remaining.
	RestoreTx(tx *gorm.DB, id uuid.UUID, qty int) (int, error)
	SetStatusTx(tx *gorm.DB, id uuid.UUID, status model.BatchStatus) error

	CreateUsageTx(tx *gorm.DB, u *model.BatchUsage) error
	ListUsage(ctx context.Context, batchID uuid.UUID) ([]model.BatchUsage, error)

	// ExpiredActive returns active batches whose expiry date has passed.
	ExpiredActive(ctx context.Context, asOf time.Time) ([]model.Batch, error)

	NextBatchNumber(ctx context.Context, tx *gorm.DB) (int, error)
	DB() *gorm.DB
}

type batchRepo struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) BatchRepository { return &batchRepo{db: db} }

func (r *batchRepo) DB() *gorm.DB { return r.db }

func (r *batchRepo) Create(ctx context.Context, b *model.Batch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *batchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := r.db.WithContext(ctx).First(&b, id).Error
	return &b, err
}

func (r *batchRepo) List(ctx context.Context, filter dto.BatchFilter) ([]model.Batch, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Batch{})
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var batches []model.Batch
	err := q.Order("date_received ASC").Offset(offset).Limit(filter.Limit).Find(&batches).Error
	return batches, total, err
}

func (r *batchRepo) ActiveByProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Batch, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var batches []model.Batch
	err := db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, model.BatchActive).
		Order("expiry_date ASC NULLS LAST, date_received ASC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) DeductTx(tx *gorm.DB, id uuid.UUID, qty int) (int, bool, error) {
	var b model.Batch
	res := tx.Model(&b).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "quantity_remaining"}}}).
		Where("id = ? AND quantity_remaining >= ?", id, qty).
		Update("quantity_remaining", gorm.Expr("quantity_remaining - ?", qty))
	if res.Error != nil {
		return 0, false, res.Error
	}
	return b.QuantityRemaining, res.RowsAffected == 1, nil
}

func (r *batchRepo) RestoreTx(tx *gorm.DB, id uuid.UUID, qty int) (int, error) {
	var b model.Batch
	err := tx.Model(&b).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "quantity_remaining"}}}).
		Where("id = ?", id).
		Update("quantity_remaining", gorm.Expr("quantity_remaining + ?", qty)).Error
	return b.QuantityRemaining, err
}

func (r *batchRepo) SetStatusTx(tx *gorm.DB, id uuid.UUID, status model.BatchStatus) error {
	return tx.Model(&model.Batch{}).Where("id = ?", id).Update("status", status).Error
}

func (r *batchRepo) CreateUsageTx(tx *gorm.DB, u *model.BatchUsage) error {
	return tx.Create(u).Error
}

func (r *batchRepo) ListUsage(ctx context.Context, batchID uuid.UUID) ([]model.BatchUsage, error) {
	var usage []model.BatchUsage
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&usage).Error
	return usage, err
}

func (r *batchRepo) ExpiredActive(ctx context.Context, asOf time.Time) ([]model.Batch, error) {
	var batches []model.Batch
	err := r.db.WithContext(ctx).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", model.BatchActive, asOf).
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) NextBatchNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	// PostgreSQL sequence for atomic batch number generation
	var num int
	err := db.WithContext(ctx).Raw("SELECT nextval('batches_batch_number_seq')").Scan(&num).Error
	return num, err
}
