package allocation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/picksync/backend/internal/domain/catalog"
	"github.com/picksync/backend/internal/domain/orders"
	"github.com/picksync/backend/internal/domain/shared"
	"github.com/picksync/backend/internal/domain/stock"
)

// SourceTagMarketplace is the audit tag for quantity covered by the
// externally-held marketplace aggregate.
const SourceTagMarketplace = "marketplace"

// AuditEntry records one atomic allocation event. SourceTag is the stock
// location for local picks, or the fallback-source name otherwise.
type AuditEntry struct {
	SKU       string
	OrderNum  string
	SourceTag string
}

// AuditWriter appends allocation events to the per-run picklist
type AuditWriter interface {
	Append(entry AuditEntry) error
}

// Summary reports end-of-run allocation counts
type Summary struct {
	Scanned            int
	FullyAllocated     int
	PartiallyAllocated int
	Unresolved         int
	Failed             int
	LocalPicks         int
	SplitCount         int
}

// Engine matches open order-line demand to supply through the fixed
// fallback chain: local stock units, then the marketplace aggregate, then
// the secondary-warehouse partner, with any remainder flagged unresolved.
//
// The engine trusts nothing carried over from previous runs: local progress
// is re-derived from the stock ledger on every pass, and fallback counters
// are rewritten from fresh aggregate reads. A run killed half way therefore
// leaves the ledger valid and resumable.
type Engine struct {
	stockRepo   stock.StockUnitRepository
	orderRepo   orders.OrderLineRepository
	marketplace stock.MarketplaceStockReader
	partner     stock.PartnerStockReader
	catalog     catalog.Repository
	audit       AuditWriter
	logger      *zap.Logger

	// partnerSupplier is the designated-supplier code that opens the
	// secondary-warehouse tier for a SKU. Empty disables the tier.
	partnerSupplier string

	now func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithPartnerSupplier sets the supplier code of the secondary-warehouse partner
func WithPartnerSupplier(code string) EngineOption {
	return func(e *Engine) {
		e.partnerSupplier = code
	}
}

// WithClock overrides the engine's clock
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an allocation engine
func NewEngine(
	stockRepo stock.StockUnitRepository,
	orderRepo orders.OrderLineRepository,
	marketplace stock.MarketplaceStockReader,
	partner stock.PartnerStockReader,
	catalogRepo catalog.Repository,
	audit AuditWriter,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		stockRepo:   stockRepo,
		orderRepo:   orderRepo,
		marketplace: marketplace,
		partner:     partner,
		catalog:     catalogRepo,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run scans the open order lines in ledger order and allocates each one.
// A failure on one line never aborts the run; the line is skipped and
// counted, and the next line is processed.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	lines, err := e.orderRepo.FindOpenForAllocation(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Scanned: len(lines)}
	e.logger.Info("Starting pick allocation",
		zap.Int("open_lines", len(lines)),
	)

	for i := range lines {
		line := &lines[i]
		if line.RequiredQty <= 0 {
			e.logger.Warn("Skipping line with invalid quantity",
				zap.String("order_num", line.OrderNum),
				zap.String("sku", line.SKU),
				zap.Int("required_qty", line.RequiredQty),
			)
			continue
		}

		if err := e.allocateLine(ctx, line, summary); err != nil {
			summary.Failed++
			e.logger.Error("Failed to allocate line",
				zap.String("order_num", line.OrderNum),
				zap.String("sku", line.SKU),
				zap.Error(err),
			)
			continue
		}

		switch {
		case line.IsSatisfied():
			summary.FullyAllocated++
		case line.AllocatedQty() > 0:
			summary.PartiallyAllocated++
		default:
			summary.Unresolved++
		}
	}

	e.logger.Info("Pick allocation completed",
		zap.Int("scanned", summary.Scanned),
		zap.Int("fully_allocated", summary.FullyAllocated),
		zap.Int("partially_allocated", summary.PartiallyAllocated),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("failed", summary.Failed),
		zap.Int("local_picks", summary.LocalPicks),
		zap.Int("splits", summary.SplitCount),
	)
	return summary, nil
}

// allocateLine walks one line through the fallback chain and persists the
// resulting counters.
func (e *Engine) allocateLine(ctx context.Context, line *orders.OrderLine, summary *Summary) error {
	alreadyLocal, err := e.stockRepo.CountAllocatedToOrder(ctx, line.SKU, line.OrderNum)
	if err != nil {
		return err
	}

	// Picks from a previous run may already cover the demand; refreshing
	// the counter and timestamp keeps re-runs idempotent.
	if alreadyLocal >= line.RequiredQty {
		line.LocalAllocatedQty = alreadyLocal
		line.MarkFulfilled(e.now())
		return e.orderRepo.SaveCounters(ctx, line)
	}

	needed := line.RequiredQty - alreadyLocal

	picked, splits := e.allocateLocal(ctx, line, &needed)
	alreadyLocal += picked
	summary.LocalPicks += picked
	summary.SplitCount += splits

	marketplaceQty := e.allocateMarketplace(ctx, line, &needed)
	partnerQty := e.allocatePartner(ctx, line, &needed)

	line.LocalAllocatedQty = alreadyLocal
	line.MarketplaceFallbackQty = marketplaceQty
	line.SecondaryWarehouseFallbackQty = partnerQty
	line.UnresolvedQty = needed

	if picked > 0 || marketplaceQty > 0 || partnerQty > 0 {
		line.MarkFulfilled(e.now())
	}
	if needed > 0 {
		e.logger.Warn("Line left with unresolved quantity",
			zap.String("order_num", line.OrderNum),
			zap.String("sku", line.SKU),
			zap.Int("unresolved_qty", needed),
		)
	}

	return e.orderRepo.SaveCounters(ctx, line)
}

// allocateLocal drains free stock units for the line's SKU. Candidates are
// re-read from the ledger before every pick so that remainder rows minted by
// a split become visible, and the commit itself is conditional on the row
// still being free; a conflict simply causes a re-read.
func (e *Engine) allocateLocal(ctx context.Context, line *orders.OrderLine, needed *int) (picked, splits int) {
	for *needed > 0 {
		candidates, err := e.stockRepo.FindFreeBySKU(ctx, line.SKU)
		if err != nil {
			e.logger.Error("Failed to read free stock",
				zap.String("sku", line.SKU),
				zap.Error(err),
			)
			return picked, splits
		}
		if len(candidates) == 0 {
			return picked, splits
		}

		unit := &candidates[0]
		wasSplit := unit.Quantity > 1

		if err := e.stockRepo.AllocateWithSplit(ctx, unit, line.OrderNum); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				continue
			}
			e.logger.Error("Failed to commit pick",
				zap.String("sku", line.SKU),
				zap.String("order_num", line.OrderNum),
				zap.String("unit_id", unit.ID.String()),
				zap.Error(err),
			)
			return picked, splits
		}

		e.appendAudit(AuditEntry{SKU: line.SKU, OrderNum: line.OrderNum, SourceTag: unit.Location})
		picked++
		if wasSplit {
			splits++
		}
		*needed--
	}
	return picked, splits
}

// allocateMarketplace covers remaining demand from the marketplace live-stock
// aggregate. No stock unit moves; the allocation exists only as a counter.
func (e *Engine) allocateMarketplace(ctx context.Context, line *orders.OrderLine, needed *int) int {
	if *needed <= 0 {
		return 0
	}

	available, err := e.marketplace.LiveStock(ctx, line.SKU)
	if err != nil {
		e.logger.Warn("Could not read marketplace stock",
			zap.String("sku", line.SKU),
			zap.Error(err),
		)
		return 0
	}

	qty := min(*needed, available)
	for i := 0; i < qty; i++ {
		e.appendAudit(AuditEntry{SKU: line.SKU, OrderNum: line.OrderNum, SourceTag: SourceTagMarketplace})
	}
	*needed -= qty
	return qty
}

// allocatePartner covers remaining demand from the secondary-warehouse
// partner, but only when the SKU's designated supplier is that partner.
func (e *Engine) allocatePartner(ctx context.Context, line *orders.OrderLine, needed *int) int {
	if *needed <= 0 || e.partnerSupplier == "" {
		return 0
	}

	supplier, err := e.catalog.SupplierForSKU(ctx, line.SKU)
	if err != nil {
		if !errors.Is(err, shared.ErrMissingMapping) {
			e.logger.Warn("Could not resolve supplier",
				zap.String("sku", line.SKU),
				zap.Error(err),
			)
		}
		return 0
	}
	if !strings.EqualFold(supplier, e.partnerSupplier) {
		return 0
	}

	available, err := e.partner.Stock(ctx, line.SKU)
	if err != nil {
		e.logger.Warn("Could not read partner stock",
			zap.String("sku", line.SKU),
			zap.Error(err),
		)
		return 0
	}

	qty := min(*needed, available)
	for i := 0; i < qty; i++ {
		e.appendAudit(AuditEntry{SKU: line.SKU, OrderNum: line.OrderNum, SourceTag: strings.ToLower(e.partnerSupplier)})
	}
	*needed -= qty
	return qty
}

// appendAudit writes one picklist row; audit failures are logged, never fatal
func (e *Engine) appendAudit(entry AuditEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(entry); err != nil {
		e.logger.Warn("Failed to append audit entry",
			zap.String("sku", entry.SKU),
			zap.String("order_num", entry.OrderNum),
			zap.Error(err),
		)
	}
}
