package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/picksync/backend/internal/domain/shared"
)

// ChannelStorefront marks order lines that originate from the storefront
// feed. Only feed-origin lines participate in archival diffing.
const ChannelStorefront = "STOREFRONT"

// ShippingSnapshot holds the mutable delivery fields refreshed on every
// feed sighting of the order line.
type ShippingSnapshot struct {
	ShippingName  string
	Postcode      string
	Address1      string
	Address2      string
	Company       string
	City          string
	County        string
	Country       string
	Phone         string
	ShippingNotes string
	Email         string
}

// OrderLine is one (order, sku) demand row in the order ledger. RequiredQty
// is what the storefront sold; the four counters record where supply was
// found. A line is satisfied when the three allocation counters cover
// RequiredQty; UnresolvedQty flags quantity left for manual procurement and
// does not count as satisfied.
type OrderLine struct {
	OrderNum    string `gorm:"column:order_num;primaryKey"`
	SKU         string `gorm:"column:sku;primaryKey"`
	RequiredQty int    `gorm:"not null"`

	LocalAllocatedQty             int `gorm:"column:local_allocated_qty;not null"`
	MarketplaceFallbackQty        int `gorm:"column:marketplace_fallback_qty;not null"`
	SecondaryWarehouseFallbackQty int `gorm:"column:secondary_warehouse_fallback_qty;not null"`
	UnresolvedQty                 int `gorm:"column:unresolved_qty;not null"`

	FulfillmentTimestamp *time.Time `gorm:"column:fulfillment_timestamp"`
	LastSeen             time.Time  `gorm:"column:last_seen;not null"`

	ShippingSnapshot `gorm:"embedded"`
	ShippingCost     decimal.Decimal `gorm:"type:decimal(18,4)"`
	Courier          int
	Channel          string `gorm:"not null;index"`
	Title            string
	Supplier         string

	OrderCreatedAt time.Time `gorm:"column:order_created_at"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM
func (OrderLine) TableName() string {
	return "order_lines"
}

// LineKey identifies an order line by its composite key
type LineKey struct {
	OrderNum string
	SKU      string
}

// NewOrderLine creates an open, unallocated order line from a feed sighting
func NewOrderLine(orderNum, sku string, requiredQty int) (*OrderLine, error) {
	if strings.TrimSpace(orderNum) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order number cannot be empty")
	}
	if strings.TrimSpace(sku) == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if requiredQty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Required quantity must be positive")
	}

	now := time.Now()
	return &OrderLine{
		OrderNum:    orderNum,
		SKU:         sku,
		RequiredQty: requiredQty,
		Channel:     ChannelStorefront,
		LastSeen:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Key returns the composite key of the line
func (l *OrderLine) Key() LineKey {
	return LineKey{OrderNum: l.OrderNum, SKU: l.SKU}
}

// AllocatedQty is the total quantity covered by the three allocation tiers
func (l *OrderLine) AllocatedQty() int {
	return l.LocalAllocatedQty + l.MarketplaceFallbackQty + l.SecondaryWarehouseFallbackQty
}

// IsSatisfied reports whether allocation covers the full demand
func (l *OrderLine) IsSatisfied() bool {
	return l.AllocatedQty() >= l.RequiredQty
}

// MarkFulfilled stamps the line after an allocation pass touched it
func (l *OrderLine) MarkFulfilled(at time.Time) {
	l.FulfillmentTimestamp = &at
	l.UpdatedAt = at
}

// RefreshSighting updates the mutable shipping fields and the last-seen
// timestamp on a repeat feed sighting.
func (l *OrderLine) RefreshSighting(snapshot ShippingSnapshot, at time.Time) {
	l.ShippingSnapshot = snapshot
	l.LastSeen = at
	l.UpdatedAt = at
}
