package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the order feed, mirrored by the HTTP adapter
var (
	ErrFeedUnavailable     = errors.New("order feed unavailable")
	ErrFeedRateLimited     = errors.New("order feed rate limited")
	ErrFeedRequestFailed   = errors.New("order feed request failed")
	ErrFeedInvalidResponse = errors.New("order feed returned an invalid response")
)

// Financial and fulfillment statuses the reconciler acts on
const (
	FinancialStatusPaid              = "paid"
	FinancialStatusPartiallyRefunded = "partially_refunded"
	FulfillmentStatusUnfulfilled     = "unfulfilled"
)

// Courier codes classified from the shipping cost. The storefront does not
// expose the chosen service directly; a 5.95 charge is the tracked-48 rate.
const (
	CourierTracked48 = 4
	CourierStandard  = 5
)

// trackedShippingCost is the flat rate that identifies the tracked service
var trackedShippingCost = decimal.NewFromFloat(5.95)

// ExternalLineItem is one sellable position within a storefront order
type ExternalLineItem struct {
	SKU      string `validate:"required"`
	Quantity int    `validate:"gt=0"`
	Title    string
	Price    decimal.Decimal
}

// ExternalShippingAddress is the delivery address as reported by the feed
type ExternalShippingAddress struct {
	Name         string
	Zip          string
	Address1     string
	Address2     string
	Company      string
	City         string
	ProvinceCode string
	CountryCode  string
	Phone        string
}

// ExternalOrderRecord is one open order as reported by the upstream
// storefront. Records are validated at the boundary; line items are checked
// individually so one malformed item never discards the rest of the order.
type ExternalOrderRecord struct {
	OrderNum          string `validate:"required"`
	Email             string
	Note              string
	FinancialStatus   string
	FulfillmentStatus string
	CancelReason      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LineItems         []ExternalLineItem
	ShippingAddress   ExternalShippingAddress
	ShippingCost      decimal.Decimal
	PaymentGateways   []string
}

// IsActionable reports whether the reconciler should track this order:
// paid or partially refunded (a refunded shipping charge keeps the order
// live), still unfulfilled, and not cancelled.
func (r *ExternalOrderRecord) IsActionable() bool {
	switch r.FinancialStatus {
	case FinancialStatusPaid, FinancialStatusPartiallyRefunded:
	default:
		return false
	}
	if r.FulfillmentStatus != FulfillmentStatusUnfulfilled && r.FulfillmentStatus != "" {
		return false
	}
	return r.CancelReason == ""
}

// Courier classifies the courier code from the shipping cost
func (r *ExternalOrderRecord) Courier() int {
	if r.ShippingCost.Equal(trackedShippingCost) {
		return CourierTracked48
	}
	return CourierStandard
}

// PayType joins the payment gateway names, "UNKNOWN" when absent
func (r *ExternalOrderRecord) PayType() string {
	if len(r.PaymentGateways) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(r.PaymentGateways, ",")
}

// OrderPageRequest asks the feed for one page of open orders
type OrderPageRequest struct {
	PageSize int
	// PageToken is the opaque cursor returned by the previous page,
	// empty for the first page.
	PageToken string
}

// OrderPage is one page of the feed's open-order listing
type OrderPage struct {
	Orders        []ExternalOrderRecord
	NextPageToken string
	HasMore       bool
}

// OrderFeedClient provides paginated read access to the storefront's
// currently open, unfulfilled orders.
type OrderFeedClient interface {
	ListOpenOrders(ctx context.Context, req OrderPageRequest) (*OrderPage, error)
}
