package repository

import (
	"context"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	// MarkVoidedTx flips the void fields; the sale row itself is never deleted.
	MarkVoidedTx(tx *gorm.DB, s *model.Sale) error
	// ClaimStockRestored durably sets stock_restored before any stock moves.
	// Returns false when the flag was already set, so a retried void never
	// restores the same allocations twice.
	ClaimStockRestored(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateReceiptPath(ctx context.Context, id uuid.UUID, path string) error
	NextReceiptNumber(ctx context.Context, tx *gorm.DB) (int, error)
	List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error)
	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Preload("Items.BatchesUsed").
		First(&s, id).Error
	return &s, err
}

func (r *saleRepo) MarkVoidedTx(tx *gorm.DB, s *model.Sale) error {
	return tx.Model(&model.Sale{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"status":         s.Status,
		"is_voided":      s.IsVoided,
		"stock_restored": s.StockRestored,
		"void_reason":    s.VoidReason,
		"voided_by":      s.VoidedBy,
		"voided_at":      s.VoidedAt,
	}).Error
}

func (r *saleRepo) ClaimStockRestored(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("id = ? AND stock_restored = ?", id, false).
		Update("stock_restored", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *saleRepo) UpdateReceiptPath(ctx context.Context, id uuid.UUID, path string) error {
	return r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("id = ?", id).Update("receipt_path", path).Error
}

func (r *saleRepo) NextReceiptNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	var num int
	err := db.WithContext(ctx).Raw("SELECT nextval('sales_receipt_number_seq')").Scan(&num).Error
	return num, err
}

func (r *saleRepo) List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Sale{})

	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Date != "" {
		q = q.Where("DATE(created_at) = ?", filter.Date)
	} else {
		q = q.Where("DATE(created_at) = CURRENT_DATE")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var sales []model.Sale
	err := q.Preload("Items.Product").Preload("Items.BatchesUsed").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error
	return sales, total, err
}
