package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/picksync/backend/internal/domain/integration"
	"github.com/picksync/backend/internal/domain/orders"
	"github.com/picksync/backend/internal/domain/shared"
	"github.com/picksync/backend/internal/domain/stock"
)

type feedResponse struct {
	page *integration.OrderPage
	err  error
}

// fakeFeed serves scripted responses and records every request it saw
type fakeFeed struct {
	responses []feedResponse
	requests  []integration.OrderPageRequest
}

func (f *fakeFeed) ListOpenOrders(_ context.Context, req integration.OrderPageRequest) (*integration.OrderPage, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return &integration.OrderPage{}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.page, next.err
}

// fakeOrderRepo is an in-memory order ledger that records archivals
type fakeOrderRepo struct {
	lines    map[orders.LineKey]*orders.OrderLine
	archived []orders.LineKey
}

func newFakeOrderRepo(lines ...*orders.OrderLine) *fakeOrderRepo {
	repo := &fakeOrderRepo{lines: make(map[orders.LineKey]*orders.OrderLine)}
	for _, l := range lines {
		repo.lines[l.Key()] = l
	}
	return repo
}

func (f *fakeOrderRepo) FindByKey(_ context.Context, key orders.LineKey) (*orders.OrderLine, error) {
	if l, ok := f.lines[key]; ok {
		return l, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeOrderRepo) FindOpenForAllocation(_ context.Context) ([]orders.OrderLine, error) {
	return nil, nil
}

func (f *fakeOrderRepo) KeysByChannel(_ context.Context, channel string) ([]orders.LineKey, error) {
	var keys []orders.LineKey
	for k, l := range f.lines {
		if l.Channel == channel {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeOrderRepo) LiveOrderNums(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var nums []string
	for k := range f.lines {
		if !seen[k.OrderNum] {
			seen[k.OrderNum] = true
			nums = append(nums, k.OrderNum)
		}
	}
	return nums, nil
}

func (f *fakeOrderRepo) Save(_ context.Context, line *orders.OrderLine) error {
	f.lines[line.Key()] = line
	return nil
}

func (f *fakeOrderRepo) SaveCounters(_ context.Context, line *orders.OrderLine) error {
	if _, ok := f.lines[line.Key()]; !ok {
		return shared.ErrNotFound
	}
	f.lines[line.Key()] = line
	return nil
}

func (f *fakeOrderRepo) Archive(_ context.Context, key orders.LineKey, _ time.Time) error {
	if _, ok := f.lines[key]; !ok {
		return shared.ErrNotFound
	}
	delete(f.lines, key)
	f.archived = append(f.archived, key)
	return nil
}

// fakeStockRepo only serves the stale-pick cleanup path
type fakeStockRepo struct {
	deleteCalls   int
	deletePrefix  string
	deleteLive    []string
	deleteReturns int64
}

func (f *fakeStockRepo) FindFreeBySKU(context.Context, string) ([]stock.StockUnit, error) {
	return nil, nil
}

func (f *fakeStockRepo) CountAllocatedToOrder(context.Context, string, string) (int, error) {
	return 0, nil
}

func (f *fakeStockRepo) SumFreeQuantity(context.Context, string) (int, error) {
	return 0, nil
}

func (f *fakeStockRepo) AllocateWithSplit(context.Context, *stock.StockUnit, string) error {
	return nil
}

func (f *fakeStockRepo) Save(context.Context, *stock.StockUnit) error {
	return nil
}

func (f *fakeStockRepo) DeleteStalePicks(_ context.Context, orderPrefix string, liveOrderNums []string) (int64, error) {
	f.deleteCalls++
	f.deletePrefix = orderPrefix
	f.deleteLive = liveOrderNums
	return f.deleteReturns, nil
}

// fakeSalesRepo captures saved sales records
type fakeSalesRepo struct {
	records []*orders.SalesRecord
}

func (f *fakeSalesRepo) Save(_ context.Context, record *orders.SalesRecord) error {
	f.records = append(f.records, record)
	return nil
}

// fakeCatalog resolves suppliers and groups from fixed maps
type fakeCatalog struct {
	groups    map[string]string
	suppliers map[string]string
	brands    map[string]string
}

func (f *fakeCatalog) GroupIDForSKU(_ context.Context, code string) (string, error) {
	if g, ok := f.groups[code]; ok {
		return g, nil
	}
	return "", shared.ErrMissingMapping
}

func (f *fakeCatalog) SupplierForSKU(_ context.Context, code string) (string, error) {
	return f.suppliers[code], nil
}

func (f *fakeCatalog) BrandForGroup(_ context.Context, groupID string) (string, error) {
	return f.brands[groupID], nil
}

func paidOrder(orderNum string, items ...integration.ExternalLineItem) integration.ExternalOrderRecord {
	return integration.ExternalOrderRecord{
		OrderNum:          orderNum,
		Email:             "jo@example.com",
		FinancialStatus:   integration.FinancialStatusPaid,
		FulfillmentStatus: integration.FulfillmentStatusUnfulfilled,
		CreatedAt:         time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
		LineItems:         items,
		ShippingAddress: integration.ExternalShippingAddress{
			Name:        "Jo Smith",
			Zip:         "LS1 4AB",
			Address1:    "1 High Street",
			City:        "Leeds",
			CountryCode: "GB",
		},
		ShippingCost:    decimal.NewFromFloat(5.95),
		PaymentGateways: []string{"card"},
	}
}

func singlePage(records ...integration.ExternalOrderRecord) []feedResponse {
	return []feedResponse{{page: &integration.OrderPage{Orders: records}}}
}

func testReconciler(feed *fakeFeed, orderRepo *fakeOrderRepo, stockRepo *fakeStockRepo, salesRepo *fakeSalesRepo, cat *fakeCatalog, cfg Config) *Reconciler {
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return NewReconciler(feed, orderRepo, stockRepo, salesRepo, cat, cfg, zap.NewNop())
}

func TestReconciler_Run_FirstSighting(t *testing.T) {
	t.Run("inserts a ledger line and its sales record", func(t *testing.T) {
		feed := &fakeFeed{responses: singlePage(
			paidOrder("SO1001", integration.ExternalLineItem{
				SKU: "HB240", Quantity: 2, Title: "Widget", Price: decimal.NewFromFloat(12.99),
			}),
		)}
		orderRepo := newFakeOrderRepo()
		salesRepo := &fakeSalesRepo{}
		cat := &fakeCatalog{
			groups:    map[string]string{"HB240": "G-HB"},
			suppliers: map[string]string{"HB240": "acme"},
			brands:    map[string]string{"G-HB": "Hobbs"},
		}

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, salesRepo, cat, Config{})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.OrdersSeen)
		assert.Equal(t, 1, summary.LinesInserted)
		assert.Equal(t, 0, summary.LinesUpdated)

		line, ok := orderRepo.lines[orders.LineKey{OrderNum: "SO1001", SKU: "HB240"}]
		require.True(t, ok)
		assert.Equal(t, 2, line.RequiredQty)
		assert.Equal(t, orders.ChannelStorefront, line.Channel)
		assert.Equal(t, "acme", line.Supplier)
		assert.Equal(t, integration.CourierTracked48, line.Courier)
		assert.Equal(t, "Jo Smith", line.ShippingName)
		assert.Equal(t, "LS1 4AB", line.Postcode)
		assert.Equal(t, "jo@example.com", line.Email)

		require.Len(t, salesRepo.records, 1)
		sale := salesRepo.records[0]
		assert.Equal(t, "HB240", sale.SKU)
		assert.Equal(t, "G-HB", sale.GroupID)
		assert.Equal(t, "Hobbs", sale.Brand)
		assert.Equal(t, "card", sale.PayType)
		assert.Equal(t, 2, sale.Qty)
		assert.Equal(t, "14:30", sale.OrderTime)
	})

	t.Run("skips the sales record when the SKU has no group mapping", func(t *testing.T) {
		feed := &fakeFeed{responses: singlePage(
			paidOrder("SO1001", integration.ExternalLineItem{SKU: "UNMAPPED", Quantity: 1}),
		)}
		orderRepo := newFakeOrderRepo()
		salesRepo := &fakeSalesRepo{}

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, salesRepo, &fakeCatalog{}, Config{})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.LinesInserted)
		assert.Empty(t, salesRepo.records)
	})

	t.Run("skips feed records without an order number", func(t *testing.T) {
		bad := paidOrder("", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		feed := &fakeFeed{responses: singlePage(bad)}
		orderRepo := newFakeOrderRepo()

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.LinesSkipped)
		assert.Empty(t, orderRepo.lines)
	})
}

func TestReconciler_Run_RepeatSighting(t *testing.T) {
	t.Run("refreshes the shipping snapshot without a new sales record", func(t *testing.T) {
		existing, err := orders.NewOrderLine("SO1001", "HB240", 2)
		require.NoError(t, err)
		existing.ShippingName = "Old Name"

		record := paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 2})
		feed := &fakeFeed{responses: singlePage(record)}
		orderRepo := newFakeOrderRepo(existing)
		salesRepo := &fakeSalesRepo{}

		at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, salesRepo, &fakeCatalog{}, Config{}).
			WithClock(func() time.Time { return at })

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.LinesUpdated)
		assert.Equal(t, 0, summary.LinesInserted)
		assert.Empty(t, salesRepo.records)

		line := orderRepo.lines[orders.LineKey{OrderNum: "SO1001", SKU: "HB240"}]
		assert.Equal(t, "Jo Smith", line.ShippingName)
		assert.Equal(t, at, line.LastSeen)
	})
}

func TestReconciler_Run_ActionabilityFilter(t *testing.T) {
	t.Run("ignores pending, fulfilled and cancelled orders", func(t *testing.T) {
		pending := paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		pending.FinancialStatus = "pending"

		fulfilled := paidOrder("SO1002", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		fulfilled.FulfillmentStatus = "fulfilled"

		cancelled := paidOrder("SO1003", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		cancelled.CancelReason = "customer"

		feed := &fakeFeed{responses: singlePage(pending, fulfilled, cancelled)}
		orderRepo := newFakeOrderRepo()

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, summary.OrdersSeen)
		assert.Empty(t, orderRepo.lines)
	})
}

func TestReconciler_Run_Pagination(t *testing.T) {
	t.Run("follows the page cursor until exhausted", func(t *testing.T) {
		first := paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		second := paidOrder("SO1002", integration.ExternalLineItem{SKU: "HB241", Quantity: 1})

		feed := &fakeFeed{responses: []feedResponse{
			{page: &integration.OrderPage{
				Orders:        []integration.ExternalOrderRecord{first},
				NextPageToken: "cursor-2",
				HasMore:       true,
			}},
			{page: &integration.OrderPage{
				Orders: []integration.ExternalOrderRecord{second},
			}},
		}}
		orderRepo := newFakeOrderRepo()

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{PageSize: 50})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, summary.PagesPulled)
		assert.Equal(t, 2, summary.LinesInserted)
		assert.False(t, summary.FeedTruncated)

		require.Len(t, feed.requests, 2)
		assert.Equal(t, integration.OrderPageRequest{PageSize: 50, PageToken: ""}, feed.requests[0])
		assert.Equal(t, integration.OrderPageRequest{PageSize: 50, PageToken: "cursor-2"}, feed.requests[1])
	})
}

func TestReconciler_Run_FeedErrors(t *testing.T) {
	t.Run("retries transient errors and recovers", func(t *testing.T) {
		record := paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 1})
		feed := &fakeFeed{responses: []feedResponse{
			{err: integration.ErrFeedUnavailable},
			{err: integration.ErrFeedRateLimited},
			{page: &integration.OrderPage{Orders: []integration.ExternalOrderRecord{record}}},
		}}
		orderRepo := newFakeOrderRepo()

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{MaxRetries: 3})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.False(t, summary.FeedTruncated)
		assert.Equal(t, 1, summary.LinesInserted)
		assert.Len(t, feed.requests, 3)
	})

	t.Run("does not retry non-transient errors", func(t *testing.T) {
		feed := &fakeFeed{responses: []feedResponse{{err: integration.ErrFeedRequestFailed}}}

		rec := testReconciler(feed, newFakeOrderRepo(), &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{MaxRetries: 3})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.True(t, summary.FeedTruncated)
		assert.Len(t, feed.requests, 1)
	})

	t.Run("truncated pull leaves the ledger unarchived", func(t *testing.T) {
		vanished, err := orders.NewOrderLine("SO0900", "HB100", 1)
		require.NoError(t, err)

		feed := &fakeFeed{responses: []feedResponse{
			{err: integration.ErrFeedUnavailable},
			{err: integration.ErrFeedUnavailable},
		}}
		orderRepo := newFakeOrderRepo(vanished)
		stockRepo := &fakeStockRepo{}

		rec := testReconciler(feed, orderRepo, stockRepo, &fakeSalesRepo{}, &fakeCatalog{}, Config{MaxRetries: 1})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.True(t, summary.FeedTruncated)
		assert.Equal(t, 0, summary.LinesArchived)
		assert.Empty(t, orderRepo.archived)
		assert.Equal(t, 0, stockRepo.deleteCalls)
	})
}

func TestReconciler_Run_Archival(t *testing.T) {
	t.Run("archives vanished lines and cleans their picks", func(t *testing.T) {
		stillOpen, err := orders.NewOrderLine("SO1001", "HB240", 1)
		require.NoError(t, err)
		vanished, err := orders.NewOrderLine("SO0900", "HB100", 1)
		require.NoError(t, err)

		feed := &fakeFeed{responses: singlePage(
			paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 1}),
		)}
		orderRepo := newFakeOrderRepo(stillOpen, vanished)
		stockRepo := &fakeStockRepo{deleteReturns: 2}

		rec := testReconciler(feed, orderRepo, stockRepo, &fakeSalesRepo{}, &fakeCatalog{}, Config{OrderPrefix: "SO"})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.LinesArchived)
		assert.Equal(t, int64(2), summary.StaleDeleted)
		assert.Equal(t, []orders.LineKey{{OrderNum: "SO0900", SKU: "HB100"}}, orderRepo.archived)

		assert.Equal(t, 1, stockRepo.deleteCalls)
		assert.Equal(t, "SO", stockRepo.deletePrefix)
		assert.Equal(t, []string{"SO1001"}, stockRepo.deleteLive)
	})

	t.Run("archives a vanished line exactly once across runs", func(t *testing.T) {
		vanished, err := orders.NewOrderLine("SO0900", "HB100", 1)
		require.NoError(t, err)

		feed := &fakeFeed{responses: []feedResponse{
			{page: &integration.OrderPage{}},
			{page: &integration.OrderPage{}},
		}}
		orderRepo := newFakeOrderRepo(vanished)

		rec := testReconciler(feed, orderRepo, &fakeStockRepo{}, &fakeSalesRepo{}, &fakeCatalog{}, Config{})

		first, err := rec.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, first.LinesArchived)

		second, err := rec.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, second.LinesArchived)
		assert.Len(t, orderRepo.archived, 1)
	})

	t.Run("a malformed item never retires the order's healthy lines", func(t *testing.T) {
		tracked, err := orders.NewOrderLine("SO1001", "HB240", 1)
		require.NoError(t, err)

		mixed := paidOrder("SO1001",
			integration.ExternalLineItem{SKU: "HB240", Quantity: 1},
			integration.ExternalLineItem{SKU: "", Quantity: 1},
		)
		feed := &fakeFeed{responses: singlePage(mixed)}
		orderRepo := newFakeOrderRepo(tracked)
		stockRepo := &fakeStockRepo{}

		rec := testReconciler(feed, orderRepo, stockRepo, &fakeSalesRepo{}, &fakeCatalog{}, Config{OrderPrefix: "SO"})

		summary, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.LinesSkipped)
		assert.Equal(t, 1, summary.LinesUpdated)
		assert.Equal(t, 0, summary.LinesArchived)
		assert.Empty(t, orderRepo.archived)
		assert.Equal(t, 0, stockRepo.deleteCalls)

		_, ok := orderRepo.lines[orders.LineKey{OrderNum: "SO1001", SKU: "HB240"}]
		assert.True(t, ok)
	})

	t.Run("skips pick cleanup when nothing was archived", func(t *testing.T) {
		feed := &fakeFeed{responses: singlePage(
			paidOrder("SO1001", integration.ExternalLineItem{SKU: "HB240", Quantity: 1}),
		)}
		stockRepo := &fakeStockRepo{}

		rec := testReconciler(feed, newFakeOrderRepo(), stockRepo, &fakeSalesRepo{}, &fakeCatalog{}, Config{OrderPrefix: "SO"})

		_, err := rec.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, stockRepo.deleteCalls)
	})
}
