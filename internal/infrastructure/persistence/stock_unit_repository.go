package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/picksync/backend/internal/domain/shared"
	"github.com/picksync/backend/internal/domain/stock"
)

// GormStockUnitRepository implements StockUnitRepository using GORM
type GormStockUnitRepository struct {
	db *gorm.DB
}

// NewGormStockUnitRepository creates a new GormStockUnitRepository
func NewGormStockUnitRepository(db *gorm.DB) *GormStockUnitRepository {
	return &GormStockUnitRepository{db: db}
}

// FindFreeBySKU returns the free units of a SKU in (location, id) order
func (r *GormStockUnitRepository) FindFreeBySKU(ctx context.Context, sku string) ([]stock.StockUnit, error) {
	var units []stock.StockUnit
	err := r.db.WithContext(ctx).
		Where("sku = ? AND allocated = ? AND deleted = ?", sku, false, false).
		Order("location asc, id asc").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

// CountAllocatedToOrder counts non-deleted units committed to an order for a SKU.
// Committed units always carry quantity one, so the row count is the item count.
func (r *GormStockUnitRepository) CountAllocatedToOrder(ctx context.Context, sku, orderNum string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&stock.StockUnit{}).
		Where("sku = ? AND order_num = ? AND deleted = ?", sku, orderNum, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// SumFreeQuantity sums quantity over the free units of a SKU
func (r *GormStockUnitRepository) SumFreeQuantity(ctx context.Context, sku string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&stock.StockUnit{}).
		Where("sku = ? AND allocated = ? AND deleted = ?", sku, false, false).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// AllocateWithSplit commits unit to orderNum. The write is conditional on the
// row still being free, so two engines racing for the same unit cannot both
// win: the loser's update matches zero rows and reports a concurrency
// conflict. For multi-quantity units the remainder insert shares the
// transaction with the assignment, keeping total quantity intact.
func (r *GormStockUnitRepository) AllocateWithSplit(ctx context.Context, unit *stock.StockUnit, orderNum string) error {
	var remainder *stock.StockUnit
	var err error

	if unit.Quantity > 1 {
		remainder, err = unit.Split(orderNum)
	} else {
		err = unit.AssignTo(orderNum)
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&stock.StockUnit{}).
			Where("id = ? AND allocated = ? AND deleted = ?", unit.ID, false, false).
			Updates(map[string]any{
				"order_num":  unit.OrderNum,
				"allocated":  true,
				"quantity":   unit.Quantity,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if remainder != nil {
			if err := tx.Create(remainder).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Save creates or updates a stock unit
func (r *GormStockUnitRepository) Save(ctx context.Context, unit *stock.StockUnit) error {
	return r.db.WithContext(ctx).Save(unit).Error
}

// DeleteStalePicks hard-deletes allocated units whose order number matches
// the feed prefix but no longer exists in the live ledger
func (r *GormStockUnitRepository) DeleteStalePicks(ctx context.Context, orderPrefix string, liveOrderNums []string) (int64, error) {
	if orderPrefix == "" {
		return 0, shared.NewDomainError("INVALID_PREFIX", "Order prefix is required for stale pick cleanup")
	}

	query := r.db.WithContext(ctx).
		Where("allocated = ? AND order_num LIKE ?", true, orderPrefix+"%")
	if len(liveOrderNums) > 0 {
		query = query.Where("order_num NOT IN ?", liveOrderNums)
	}

	result := query.Delete(&stock.StockUnit{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
