package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/picksync/backend/internal/domain/orders"
	"github.com/picksync/backend/internal/domain/shared"
)

// GormOrderLineRepository implements OrderLineRepository using GORM
type GormOrderLineRepository struct {
	db *gorm.DB
}

// NewGormOrderLineRepository creates a new GormOrderLineRepository
func NewGormOrderLineRepository(db *gorm.DB) *GormOrderLineRepository {
	return &GormOrderLineRepository{db: db}
}

// FindByKey finds a line by its composite key
func (r *GormOrderLineRepository) FindByKey(ctx context.Context, key orders.LineKey) (*orders.OrderLine, error) {
	var line orders.OrderLine
	err := r.db.WithContext(ctx).
		First(&line, "order_num = ? AND sku = ?", key.OrderNum, key.SKU).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindOpenForAllocation returns the feed-origin lines whose allocation
// counters do not yet cover the required quantity, in ledger scan order
func (r *GormOrderLineRepository) FindOpenForAllocation(ctx context.Context) ([]orders.OrderLine, error) {
	var lines []orders.OrderLine
	err := r.db.WithContext(ctx).
		Where("channel = ?", orders.ChannelStorefront).
		Where("local_allocated_qty + marketplace_fallback_qty + secondary_warehouse_fallback_qty < required_qty").
		Order("order_num asc, sku asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// KeysByChannel lists the composite keys of all live lines for a channel
func (r *GormOrderLineRepository) KeysByChannel(ctx context.Context, channel string) ([]orders.LineKey, error) {
	var keys []orders.LineKey
	err := r.db.WithContext(ctx).
		Model(&orders.OrderLine{}).
		Where("channel = ?", channel).
		Select("order_num, sku").
		Order("order_num asc, sku asc").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// LiveOrderNums lists the distinct order numbers present in the ledger
func (r *GormOrderLineRepository) LiveOrderNums(ctx context.Context) ([]string, error) {
	var nums []string
	err := r.db.WithContext(ctx).
		Model(&orders.OrderLine{}).
		Distinct("order_num").
		Order("order_num asc").
		Pluck("order_num", &nums).Error
	if err != nil {
		return nil, err
	}
	return nums, nil
}

// Save creates or updates a line
func (r *GormOrderLineRepository) Save(ctx context.Context, line *orders.OrderLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// SaveCounters persists the allocation counters and fulfillment timestamp
// without touching the shipping snapshot
func (r *GormOrderLineRepository) SaveCounters(ctx context.Context, line *orders.OrderLine) error {
	result := r.db.WithContext(ctx).
		Model(&orders.OrderLine{}).
		Where("order_num = ? AND sku = ?", line.OrderNum, line.SKU).
		Updates(map[string]any{
			"local_allocated_qty":              line.LocalAllocatedQty,
			"marketplace_fallback_qty":         line.MarketplaceFallbackQty,
			"secondary_warehouse_fallback_qty": line.SecondaryWarehouseFallbackQty,
			"unresolved_qty":                   line.UnresolvedQty,
			"fulfillment_timestamp":            line.FulfillmentTimestamp,
			"updated_at":                       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Archive copies the line to the historical store and removes it from the
// live ledger in one transaction
func (r *GormOrderLineRepository) Archive(ctx context.Context, key orders.LineKey, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line orders.OrderLine
		if err := tx.First(&line, "order_num = ? AND sku = ?", key.OrderNum, key.SKU).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}

		if err := tx.Create(orders.NewArchivedOrderLine(&line, at)).Error; err != nil {
			return err
		}

		return tx.Delete(&orders.OrderLine{}, "order_num = ? AND sku = ?", key.OrderNum, key.SKU).Error
	})
}

