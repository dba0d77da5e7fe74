package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/picksync/backend/internal/domain/orders"
)

// GormSalesRecordRepository implements SalesRecordRepository using GORM
type GormSalesRecordRepository struct {
	db *gorm.DB
}

// NewGormSalesRecordRepository creates a new GormSalesRecordRepository
func NewGormSalesRecordRepository(db *gorm.DB) *GormSalesRecordRepository {
	return &GormSalesRecordRepository{db: db}
}

// Save persists a sales record
func (r *GormSalesRecordRepository) Save(ctx context.Context, record *orders.SalesRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
