package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArchivedOrderLine is the historical snapshot written once when a line
// disappears from the storefront feed. Rows are append-only; there is no
// un-archive transition.
type ArchivedOrderLine struct {
	OrderNum    string `gorm:"column:order_num;primaryKey"`
	SKU         string `gorm:"column:sku;primaryKey"`
	RequiredQty int    `gorm:"not null"`

	LocalAllocatedQty             int `gorm:"column:local_allocated_qty;not null"`
	MarketplaceFallbackQty        int `gorm:"column:marketplace_fallback_qty;not null"`
	SecondaryWarehouseFallbackQty int `gorm:"column:secondary_warehouse_fallback_qty;not null"`
	UnresolvedQty                 int `gorm:"column:unresolved_qty;not null"`

	FulfillmentTimestamp *time.Time `gorm:"column:fulfillment_timestamp"`
	LastSeen             time.Time  `gorm:"column:last_seen"`

	ShippingSnapshot `gorm:"embedded"`
	ShippingCost     decimal.Decimal `gorm:"type:decimal(18,4)"`
	Courier          int
	Channel          string
	Title            string
	Supplier         string

	OrderCreatedAt time.Time `gorm:"column:order_created_at"`
	ArchivedAt     time.Time `gorm:"column:archived_at;not null"`
}

// TableName returns the table name for GORM
func (ArchivedOrderLine) TableName() string {
	return "archived_order_lines"
}

// NewArchivedOrderLine snapshots a live order line at archival time
func NewArchivedOrderLine(line *OrderLine, at time.Time) *ArchivedOrderLine {
	return &ArchivedOrderLine{
		OrderNum:                      line.OrderNum,
		SKU:                           line.SKU,
		RequiredQty:                   line.RequiredQty,
		LocalAllocatedQty:             line.LocalAllocatedQty,
		MarketplaceFallbackQty:        line.MarketplaceFallbackQty,
		SecondaryWarehouseFallbackQty: line.SecondaryWarehouseFallbackQty,
		UnresolvedQty:                 line.UnresolvedQty,
		FulfillmentTimestamp:          line.FulfillmentTimestamp,
		LastSeen:                      line.LastSeen,
		ShippingSnapshot:              line.ShippingSnapshot,
		ShippingCost:                  line.ShippingCost,
		Courier:                       line.Courier,
		Channel:                       line.Channel,
		Title:                         line.Title,
		Supplier:                      line.Supplier,
		OrderCreatedAt:                line.OrderCreatedAt,
		ArchivedAt:                    at,
	}
}
