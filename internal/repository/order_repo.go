package repository

import (
	"context"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, o *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// SaveTx persists mutated order fields inside the caller's transaction.
	SaveTx(tx *gorm.DB, o *model.Order) error
	// ClaimStockRestored durably sets stock_restored before any stock moves.
	// Returns false when the flag was already set, so a retried cancel never
	// restores the same allocations twice.
	ClaimStockRestored(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimPointsAwardedTx conditionally sets points_awarded inside the
	// caller's transaction. Returns false when another completion already
	// claimed the award.
	ClaimPointsAwardedTx(tx *gorm.DB, id uuid.UUID) (bool, error)
	AppendStatusTx(tx *gorm.DB, change *model.OrderStatusChange) error
	NextOrderNumber(ctx context.Context, tx *gorm.DB) (int, error)
	List(ctx context.Context, filter dto.OrderFilter) ([]model.Order, int64, error)

	// Stalled returns orders sitting in the given status since before the
	// cutoff. A non-nil payment status narrows the match (the sweep uses
	// pending+payment-pending and confirmed).
	Stalled(ctx context.Context, status model.OrderStatus, payment *model.PaymentStatus, cutoff time.Time, limit int) ([]model.Order, error)

	DB() *gorm.DB
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) DB() *gorm.DB { return r.db }

func (r *orderRepo) Create(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Preload("Items.BatchesUsed").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&o, id).Error
	return &o, err
}

func (r *orderRepo) SaveTx(tx *gorm.DB, o *model.Order) error {
	// Omit associations: items, allocations and history rows are written
	// through their own calls, never re-saved wholesale.
	return tx.Omit("Items", "StatusHistory", "Customer").Save(o).Error
}

func (r *orderRepo) ClaimStockRestored(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND stock_restored = ?", id, false).
		Update("stock_restored", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepo) ClaimPointsAwardedTx(tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := tx.Model(&model.Order{}).
		Where("id = ? AND points_awarded = ?", id, false).
		Update("points_awarded", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepo) AppendStatusTx(tx *gorm.DB, change *model.OrderStatusChange) error {
	return tx.Create(change).Error
}

func (r *orderRepo) NextOrderNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var num int
	err := db.WithContext(ctx).Raw("SELECT nextval('orders_order_number_seq')").Scan(&num).Error
	return num, err
}

func (r *orderRepo) List(ctx context.Context, filter dto.OrderFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})

	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var orders []model.Order
	err := q.Preload("Items.Product").Preload("Items.BatchesUsed").
		Preload("StatusHistory").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&orders).Error
	return orders, total, err
}

func (r *orderRepo) Stalled(ctx context.Context, status model.OrderStatus, payment *model.PaymentStatus, cutoff time.Time, limit int) ([]model.Order, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff)
	if payment != nil {
		q = q.Where("payment_status = ?", *payment)
	}
	var orders []model.Order
	err := q.Order("updated_at ASC").Limit(limit).Find(&orders).Error
	return orders, err
}
