package orders

import (
	"context"
	"time"
)

// OrderLineRepository defines the interface for the live order ledger
type OrderLineRepository interface {
	// FindByKey finds a line by its composite key
	FindByKey(ctx context.Context, key LineKey) (*OrderLine, error)

	// FindOpenForAllocation returns the lines the allocation engine scans:
	// feed-origin lines whose allocation counters do not yet cover the
	// required quantity, in ledger scan order.
	FindOpenForAllocation(ctx context.Context) ([]OrderLine, error)

	// KeysByChannel lists the composite keys of all live lines for a channel
	KeysByChannel(ctx context.Context, channel string) ([]LineKey, error)

	// LiveOrderNums lists the distinct order numbers present in the ledger
	LiveOrderNums(ctx context.Context) ([]string, error)

	// Save creates or updates a line
	Save(ctx context.Context, line *OrderLine) error

	// SaveCounters persists the allocation counters and fulfillment
	// timestamp of a line without touching the shipping snapshot.
	SaveCounters(ctx context.Context, line *OrderLine) error

	// Archive copies the line to the historical store and removes it from
	// the live ledger in one transaction.
	Archive(ctx context.Context, key LineKey, at time.Time) error
}

// SalesRecordRepository persists first-sighting revenue records
type SalesRecordRepository interface {
	Save(ctx context.Context, record *SalesRecord) error
}
