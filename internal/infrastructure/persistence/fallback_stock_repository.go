package persistence

import (
	"context"

	"gorm.io/gorm"
)

// MarketplaceFeedRow mirrors the externally-synced marketplace stock feed.
// Rows are written by the marketplace sync job; this side only reads them.
type MarketplaceFeedRow struct {
	Code    string `gorm:"primaryKey"`
	LiveQty int    `gorm:"column:live_qty;not null"`
}

// TableName returns the table name for GORM
func (MarketplaceFeedRow) TableName() string {
	return "marketplace_feed"
}

// PartnerStockRow mirrors the secondary-warehouse partner's stock export
type PartnerStockRow struct {
	Code  string `gorm:"primaryKey"`
	Stock int    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PartnerStockRow) TableName() string {
	return "partner_stock"
}

// GormMarketplaceStockReader implements MarketplaceStockReader over the
// synced marketplace feed table
type GormMarketplaceStockReader struct {
	db *gorm.DB
}

// NewGormMarketplaceStockReader creates a new GormMarketplaceStockReader
func NewGormMarketplaceStockReader(db *gorm.DB) *GormMarketplaceStockReader {
	return &GormMarketplaceStockReader{db: db}
}

// LiveStock returns the marketplace live quantity for a SKU, zero when the
// SKU is absent from the feed
func (r *GormMarketplaceStockReader) LiveStock(ctx context.Context, sku string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&MarketplaceFeedRow{}).
		Where("code = ?", sku).
		Select("COALESCE(SUM(live_qty), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, nil
	}
	return int(total), nil
}

// GormPartnerStockReader implements PartnerStockReader over the partner's
// stock export table
type GormPartnerStockReader struct {
	db *gorm.DB
}

// NewGormPartnerStockReader creates a new GormPartnerStockReader
func NewGormPartnerStockReader(db *gorm.DB) *GormPartnerStockReader {
	return &GormPartnerStockReader{db: db}
}

// Stock returns the partner warehouse quantity for a SKU, zero when absent
func (r *GormPartnerStockReader) Stock(ctx context.Context, sku string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&PartnerStockRow{}).
		Where("code = ?", sku).
		Select("COALESCE(SUM(stock), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, nil
	}
	return int(total), nil
}
