package stock

import (
	"context"
)

// StockUnitRepository defines the interface for stock ledger persistence
type StockUnitRepository interface {
	// FindFreeBySKU returns the non-deleted, unallocated units for a SKU
	// ordered by (location, id) ascending. The ordering is the allocation
	// engine's deterministic tie-break.
	FindFreeBySKU(ctx context.Context, sku string) ([]StockUnit, error)

	// CountAllocatedToOrder counts non-deleted units committed to an order
	// for a SKU. The engine re-derives its progress from this on every run.
	CountAllocatedToOrder(ctx context.Context, sku, orderNum string) (int, error)

	// SumFreeQuantity sums quantity over non-deleted unallocated units of a SKU
	SumFreeQuantity(ctx context.Context, sku string) (int, error)

	// AllocateWithSplit commits unit to orderNum in a single transaction.
	// The update is conditional on the row still being unallocated and not
	// deleted (compare-and-swap on the allocation flag); when the unit's
	// quantity exceeds one, the quantity-1 assignment and the remainder
	// insert are part of the same transaction.
	// Returns shared.ErrConcurrencyConflict when the row was taken by
	// another writer since it was read.
	AllocateWithSplit(ctx context.Context, unit *StockUnit, orderNum string) error

	// Save creates or updates a stock unit
	Save(ctx context.Context, unit *StockUnit) error

	// DeleteStalePicks hard-deletes allocated units whose order number
	// starts with orderPrefix and is no longer present among liveOrderNums.
	// Returns the number of rows removed.
	DeleteStalePicks(ctx context.Context, orderPrefix string, liveOrderNums []string) (int64, error)
}

// MarketplaceStockReader reads the externally-held marketplace live-stock
// aggregate for a SKU. Marketplace stock never materialises as local stock
// units; allocation against it is a counter on the order line only.
type MarketplaceStockReader interface {
	LiveStock(ctx context.Context, sku string) (int, error)
}

// PartnerStockReader reads the secondary-warehouse partner's stock aggregate
type PartnerStockReader interface {
	Stock(ctx context.Context, sku string) (int, error)
}
