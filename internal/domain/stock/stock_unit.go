package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/picksync/backend/internal/domain/shared"
)

// OrderNumUnallocated is the sentinel order number carried by stock units
// that are not committed to any order.
const OrderNumUnallocated = "#FREE"

// StockUnit is a row in the stock ledger: a physical or virtual batch of
// identical items held at one location. A unit is either free
// (OrderNum == OrderNumUnallocated, Allocated == false) or irrevocably
// committed to a single order until archival cleanup deletes it.
//
// Invariant: the sum of Quantity over all non-deleted, unallocated units of
// a SKU equals the free stock for that SKU. Allocation never changes that
// sum; it only moves quantity between units (see Split).
type StockUnit struct {
	shared.BaseEntity
	SKU       string `gorm:"column:sku;not null;index:idx_stock_units_sku_free,priority:1"`
	GroupID   string `gorm:"column:group_id"`
	Quantity  int    `gorm:"not null"`
	Location  string `gorm:"not null"`
	OrderNum  string `gorm:"column:order_num;not null;index"`
	Allocated bool   `gorm:"not null;index:idx_stock_units_sku_free,priority:2"`
	Deleted   bool   `gorm:"not null"`
	Supplier  string
	Brand     string
}

// TableName returns the table name for GORM
func (StockUnit) TableName() string {
	return "stock_units"
}

// NewStockUnit creates a free stock unit for a SKU at a location
func NewStockUnit(sku, location string, quantity int) (*StockUnit, error) {
	if strings.TrimSpace(sku) == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}

	return &StockUnit{
		BaseEntity: shared.NewBaseEntity(),
		SKU:        sku,
		Quantity:   quantity,
		Location:   location,
		OrderNum:   OrderNumUnallocated,
		Allocated:  false,
		Deleted:    false,
	}, nil
}

// IsFree reports whether the unit is available for allocation
func (u *StockUnit) IsFree() bool {
	return !u.Deleted && !u.Allocated && u.OrderNum == OrderNumUnallocated
}

// AssignTo commits the whole unit to an order. The unit must be free and
// carry exactly one item; multi-quantity units go through Split first.
func (u *StockUnit) AssignTo(orderNum string) error {
	if orderNum == "" || orderNum == OrderNumUnallocated {
		return shared.NewDomainError("INVALID_ORDER", "Order number is required for assignment")
	}
	if !u.IsFree() {
		return shared.ErrInvalidState
	}
	if u.Quantity != 1 {
		return shared.NewDomainError("INVALID_QUANTITY", "Only single-quantity units can be assigned directly")
	}

	u.OrderNum = orderNum
	u.Allocated = true
	u.UpdatedAt = time.Now()
	return nil
}

// Split decomposes a multi-quantity free unit into this unit, shrunk to
// quantity 1 and committed to orderNum, plus a fresh remainder unit holding
// the rest. The remainder keeps the SKU, location, supplier and brand of the
// original and gets a newly minted ID; total quantity is conserved.
//
// The caller must persist both rows in one transaction: committing only one
// of the two writes destroys stock quantity.
func (u *StockUnit) Split(orderNum string) (*StockUnit, error) {
	if orderNum == "" || orderNum == OrderNumUnallocated {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order number is required for assignment")
	}
	if !u.IsFree() {
		return nil, shared.ErrInvalidState
	}
	if u.Quantity < 2 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Split requires a unit with quantity greater than one")
	}

	now := time.Now()
	remainder := &StockUnit{
		BaseEntity: shared.BaseEntity{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		SKU:       u.SKU,
		GroupID:   u.GroupID,
		Quantity:  u.Quantity - 1,
		Location:  u.Location,
		OrderNum:  OrderNumUnallocated,
		Allocated: false,
		Deleted:   false,
		Supplier:  u.Supplier,
		Brand:     u.Brand,
	}

	u.Quantity = 1
	u.OrderNum = orderNum
	u.Allocated = true
	u.UpdatedAt = now

	return remainder, nil
}
