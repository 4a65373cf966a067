package infra

import (
	"fmt"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies idempotent SQL patches that GORM
// cannot express (sequences for human-facing document numbers).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates the schema. Safe to re-run.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Product{},
		&model.Batch{},
		&model.BatchUsage{},
		&model.BatchAllocation{},
		&model.Sale{},
		&model.SaleItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderStatusChange{},
		&model.Customer{},
		&model.PointsTransaction{},
		&model.User{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express:
// the sequences behind batch numbers, receipt numbers and order numbers.
// Each one uses IF NOT EXISTS so re-running on a patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		`CREATE SEQUENCE IF NOT EXISTS batches_batch_number_seq START WITH 1`,
		`CREATE SEQUENCE IF NOT EXISTS sales_receipt_number_seq START WITH 1000`,
		`CREATE SEQUENCE IF NOT EXISTS orders_order_number_seq START WITH 1000`,
		// The sweep scans stalled orders by (status, updated_at).
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_orders_status_updated_at') THEN
		    CREATE INDEX idx_orders_status_updated_at ON orders (status, updated_at);
		  END IF;
		END $$`,
		// Expiry sweep scans active batches by expiry date.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_batches_active_expiry') THEN
		    CREATE INDEX idx_batches_active_expiry
		        ON batches (expiry_date)
		        WHERE status = 'active' AND expiry_date IS NOT NULL;
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
