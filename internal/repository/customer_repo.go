package repository

import (
	"context"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomerRepository is the loyalty ledger's storage. Point balances are
// mutated only through AddPointsTx so the single-writer discipline holds at
// the module boundary.
type CustomerRepository interface {
	Create(ctx context.Context, c *model.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)

	// AddPointsTx applies a signed delta to the balance and returns the
	// post-update balance read back from the same statement, so ledger rows
	// written in the same transaction chain correctly even before commit.
	// Debits succeed only if the balance covers them; returns false when the
	// guard rejects.
	AddPointsTx(tx *gorm.DB, id uuid.UUID, delta int) (int, bool, error)
	CreateTransactionTx(tx *gorm.DB, t *model.PointsTransaction) error
	ListTransactions(ctx context.Context, customerID uuid.UUID, filter dto.PointsHistoryFilter) ([]model.PointsTransaction, int64, error)

	DB() *gorm.DB
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepository(db *gorm.DB) CustomerRepository { return &customerRepo{db: db} }

func (r *customerRepo) DB() *gorm.DB { return r.db }

func (r *customerRepo) Create(ctx context.Context, c *model.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *customerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *customerRepo) AddPointsTx(tx *gorm.DB, id uuid.UUID, delta int) (int, bool, error) {
	var c model.Customer
	q := tx.Model(&c).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "loyalty_points"}}}).
		Where("id = ?", id)
	if delta < 0 {
		q = q.Where("loyalty_points >= ?", -delta)
	}
	res := q.Update("loyalty_points", gorm.Expr("loyalty_points + ?", delta))
	if res.Error != nil {
		return 0, false, res.Error
	}
	return c.LoyaltyPoints, res.RowsAffected == 1, nil
}

func (r *customerRepo) CreateTransactionTx(tx *gorm.DB, t *model.PointsTransaction) error {
	return tx.Create(t).Error
}

func (r *customerRepo) ListTransactions(ctx context.Context, customerID uuid.UUID, filter dto.PointsHistoryFilter) ([]model.PointsTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.PointsTransaction{}).
		Where("customer_id = ?", customerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var txns []model.PointsTransaction
	err := q.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&txns).Error
	return txns, total, err
}
