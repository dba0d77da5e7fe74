package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/picksync/backend/internal/domain/catalog"
	"github.com/picksync/backend/internal/domain/integration"
	"github.com/picksync/backend/internal/domain/orders"
	"github.com/picksync/backend/internal/domain/shared"
	"github.com/picksync/backend/internal/domain/stock"
)

// Config holds the reconciler's feed-paging behaviour
type Config struct {
	PageSize     int           // orders per feed page
	PageDelay    time.Duration // pause between pages to respect rate limits
	MaxRetries   int           // retries per page on transient feed errors
	RetryBackoff time.Duration // base backoff, doubled per attempt
	OrderPrefix  string        // naming convention of feed order numbers
}

// applyDefaults fills the zero fields of a Config
func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 250
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
}

// Summary reports what one reconciliation pass did
type Summary struct {
	PagesPulled   int
	OrdersSeen    int
	LinesInserted int
	LinesUpdated  int
	LinesSkipped  int
	LinesArchived int
	StaleDeleted  int64
	FeedTruncated bool // true when retries ran out and later pages were dropped
}

// Reconciler synchronises the order ledger with the storefront feed's
// current open-order set, archives lines that vanished, and removes stale
// picks tied to archived orders.
type Reconciler struct {
	feed      integration.OrderFeedClient
	orderRepo orders.OrderLineRepository
	stockRepo stock.StockUnitRepository
	salesRepo orders.SalesRecordRepository
	catalog   catalog.Repository
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       Config

	now func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(
	feed integration.OrderFeedClient,
	orderRepo orders.OrderLineRepository,
	stockRepo stock.StockUnitRepository,
	salesRepo orders.SalesRecordRepository,
	catalogRepo catalog.Repository,
	cfg Config,
	logger *zap.Logger,
) *Reconciler {
	cfg.applyDefaults()
	return &Reconciler{
		feed:      feed,
		orderRepo: orderRepo,
		stockRepo: stockRepo,
		salesRepo: salesRepo,
		catalog:   catalogRepo,
		validate:  validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the reconciler's clock, for tests
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run performs one full reconciliation pass: pull feed pages, upsert lines,
// archive vanished lines, clean stale picks.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	seen := make(map[orders.LineKey]bool)

	r.pullFeed(ctx, seen, summary)

	// Archival diffing against a truncated pull would archive orders that
	// are still open upstream; skip it and let the next run catch up.
	if summary.FeedTruncated {
		r.logger.Warn("Feed pull incomplete, skipping archival for this run")
		return summary, nil
	}

	if err := r.archiveVanished(ctx, seen, summary); err != nil {
		return summary, err
	}

	if summary.LinesArchived > 0 {
		if err := r.cleanStalePicks(ctx, summary); err != nil {
			r.logger.Error("Failed to remove stale picks", zap.Error(err))
		}
	}

	r.logger.Info("Order sync completed",
		zap.Int("pages", summary.PagesPulled),
		zap.Int("orders_seen", summary.OrdersSeen),
		zap.Int("lines_inserted", summary.LinesInserted),
		zap.Int("lines_updated", summary.LinesUpdated),
		zap.Int("lines_archived", summary.LinesArchived),
		zap.Int64("stale_deleted", summary.StaleDeleted),
	)
	return summary, nil
}

// pullFeed pages through the feed and upserts every actionable line.
// Transient feed errors are retried with backoff; when retries run out the
// pull stops with whatever pages were already processed.
func (r *Reconciler) pullFeed(ctx context.Context, seen map[orders.LineKey]bool, summary *Summary) {
	pageToken := ""
	for {
		page, err := r.pullPage(ctx, pageToken)
		if err != nil {
			r.logger.Error("Giving up on feed page after retries", zap.Error(err))
			summary.FeedTruncated = true
			return
		}

		summary.PagesPulled++
		for i := range page.Orders {
			record := &page.Orders[i]
			if err := r.validate.Struct(record); err != nil {
				r.logger.Warn("Skipping malformed feed record",
					zap.String("order_num", record.OrderNum),
					zap.Error(err),
				)
				summary.LinesSkipped++
				continue
			}
			if !record.IsActionable() {
				continue
			}
			summary.OrdersSeen++
			r.upsertOrder(ctx, record, seen, summary)
		}

		if !page.HasMore {
			return
		}
		pageToken = page.NextPageToken

		if r.cfg.PageDelay > 0 {
			select {
			case <-time.After(r.cfg.PageDelay):
			case <-ctx.Done():
				summary.FeedTruncated = true
				return
			}
		}
	}
}

// pullPage fetches one page, retrying transient errors with doubling backoff
func (r *Reconciler) pullPage(ctx context.Context, token string) (*integration.OrderPage, error) {
	req := integration.OrderPageRequest{PageSize: r.cfg.PageSize, PageToken: token}

	var lastErr error
	backoff := r.cfg.RetryBackoff
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("Retrying feed page",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		page, err := r.feed.ListOpenOrders(ctx, req)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !errors.Is(err, integration.ErrFeedUnavailable) && !errors.Is(err, integration.ErrFeedRateLimited) {
			return nil, err
		}
	}
	return nil, lastErr
}

// upsertOrder refreshes or inserts the ledger line for every item of an order
func (r *Reconciler) upsertOrder(ctx context.Context, record *integration.ExternalOrderRecord, seen map[orders.LineKey]bool, summary *Summary) {
	snapshot := orders.ShippingSnapshot{
		ShippingName:  record.ShippingAddress.Name,
		Postcode:      record.ShippingAddress.Zip,
		Address1:      record.ShippingAddress.Address1,
		Address2:      record.ShippingAddress.Address2,
		Company:       record.ShippingAddress.Company,
		City:          record.ShippingAddress.City,
		County:        record.ShippingAddress.ProvinceCode,
		Country:       record.ShippingAddress.CountryCode,
		Phone:         record.ShippingAddress.Phone,
		ShippingNotes: record.Note,
		Email:         record.Email,
	}

	for i := range record.LineItems {
		item := record.LineItems[i]

		// One bad item must not sink the order: its healthy siblings still
		// count as sighted, otherwise the archival diff would retire lines
		// that are open upstream.
		if err := r.validate.Struct(&item); err != nil {
			r.logger.Warn("Skipping malformed line item",
				zap.String("order_num", record.OrderNum),
				zap.String("sku", item.SKU),
				zap.Error(err),
			)
			summary.LinesSkipped++
			continue
		}

		key := orders.LineKey{OrderNum: record.OrderNum, SKU: item.SKU}
		seen[key] = true

		existing, err := r.orderRepo.FindByKey(ctx, key)
		switch {
		case err == nil:
			existing.RefreshSighting(snapshot, r.now())
			if err := r.orderRepo.Save(ctx, existing); err != nil {
				r.logger.Error("Failed to refresh order line",
					zap.String("order_num", key.OrderNum),
					zap.String("sku", key.SKU),
					zap.Error(err),
				)
				continue
			}
			summary.LinesUpdated++

		case errors.Is(err, shared.ErrNotFound):
			if r.insertLine(ctx, record, &item, snapshot) {
				summary.LinesInserted++
			} else {
				summary.LinesSkipped++
			}

		default:
			r.logger.Error("Failed to look up order line",
				zap.String("order_num", key.OrderNum),
				zap.String("sku", key.SKU),
				zap.Error(err),
			)
		}
	}
}

// insertLine creates a new ledger line and its first-sighting sales record
func (r *Reconciler) insertLine(ctx context.Context, record *integration.ExternalOrderRecord, item *integration.ExternalLineItem, snapshot orders.ShippingSnapshot) bool {
	line, err := orders.NewOrderLine(record.OrderNum, item.SKU, item.Quantity)
	if err != nil {
		r.logger.Warn("Skipping invalid feed line",
			zap.String("order_num", record.OrderNum),
			zap.String("sku", item.SKU),
			zap.Error(err),
		)
		return false
	}

	line.ShippingSnapshot = snapshot
	line.ShippingCost = record.ShippingCost
	line.Courier = record.Courier()
	line.Title = item.Title
	line.OrderCreatedAt = record.CreatedAt
	line.Supplier = r.supplierFor(ctx, item.SKU)

	if err := r.orderRepo.Save(ctx, line); err != nil {
		r.logger.Error("Failed to insert order line",
			zap.String("order_num", record.OrderNum),
			zap.String("sku", item.SKU),
			zap.Error(err),
		)
		return false
	}

	r.recordSale(ctx, record, item)
	return true
}

// supplierFor resolves the designated supplier for a SKU, empty when unmapped
func (r *Reconciler) supplierFor(ctx context.Context, sku string) string {
	supplier, err := r.catalog.SupplierForSKU(ctx, sku)
	if err != nil {
		if !errors.Is(err, shared.ErrMissingMapping) {
			r.logger.Warn("Could not resolve supplier",
				zap.String("sku", sku),
				zap.Error(err),
			)
		}
		return ""
	}
	return supplier
}

// recordSale emits the revenue record for a first sighting. The order counts
// as a committed transaction when it appears in the feed, not when it ships.
func (r *Reconciler) recordSale(ctx context.Context, record *integration.ExternalOrderRecord, item *integration.ExternalLineItem) {
	groupID, err := r.catalog.GroupIDForSKU(ctx, item.SKU)
	if err != nil {
		r.logger.Warn("No group mapping for SKU, skipping sales record",
			zap.String("sku", item.SKU),
			zap.String("order_num", record.OrderNum),
		)
		return
	}

	brand, err := r.catalog.BrandForGroup(ctx, groupID)
	if err != nil {
		brand = ""
	}

	sale := &orders.SalesRecord{
		BaseEntity:  shared.NewBaseEntity(),
		SKU:         item.SKU,
		SoldDate:    record.CreatedAt.Truncate(24 * time.Hour),
		GroupID:     groupID,
		OrderNum:    record.OrderNum,
		OrderTime:   record.CreatedAt.Format("15:04"),
		Qty:         item.Quantity,
		SoldPrice:   item.Price,
		Channel:     orders.ChannelStorefront,
		PayType:     record.PayType(),
		ProductName: item.Title,
		Brand:       brand,
	}

	if err := r.salesRepo.Save(ctx, sale); err != nil {
		r.logger.Error("Failed to insert sales record",
			zap.String("sku", item.SKU),
			zap.String("order_num", record.OrderNum),
			zap.Error(err),
		)
	}
}

// archiveVanished moves feed-origin lines that were not seen in this pull to
// the historical store. Each line is archived exactly once; the copy and the
// delete commit together.
func (r *Reconciler) archiveVanished(ctx context.Context, seen map[orders.LineKey]bool, summary *Summary) error {
	keys, err := r.orderRepo.KeysByChannel(ctx, orders.ChannelStorefront)
	if err != nil {
		return err
	}

	at := r.now()
	for _, key := range keys {
		if seen[key] {
			continue
		}
		if err := r.orderRepo.Archive(ctx, key, at); err != nil {
			r.logger.Error("Failed to archive order line",
				zap.String("order_num", key.OrderNum),
				zap.String("sku", key.SKU),
				zap.Error(err),
			)
			continue
		}
		summary.LinesArchived++
		r.logger.Info("Archived order line",
			zap.String("order_num", key.OrderNum),
			zap.String("sku", key.SKU),
		)
	}
	return nil
}

// cleanStalePicks deletes allocated stock units whose order has left the
// live ledger. Disappearance from the feed means the order shipped, so the
// units are removed outright rather than returned to the free pool.
func (r *Reconciler) cleanStalePicks(ctx context.Context, summary *Summary) error {
	live, err := r.orderRepo.LiveOrderNums(ctx)
	if err != nil {
		return err
	}

	deleted, err := r.stockRepo.DeleteStalePicks(ctx, r.cfg.OrderPrefix, live)
	if err != nil {
		return err
	}

	summary.StaleDeleted = deleted
	if deleted > 0 {
		r.logger.Info("Removed stale picks from stock ledger", zap.Int64("deleted", deleted))
	}
	return nil
}
