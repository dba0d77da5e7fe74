package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/picksync/backend/internal/domain/integration"
)

// Wire representation of the storefront admin API's order listing.

type ordersResponse struct {
	Orders []wireOrder `json:"orders"`
}

type wireOrder struct {
	Name              string             `json:"name"`
	Email             string             `json:"email"`
	Note              string             `json:"note"`
	FinancialStatus   string             `json:"financial_status"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	CancelReason      string             `json:"cancel_reason"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	LineItems         []wireLineItem     `json:"line_items"`
	ShippingAddress   *wireAddress       `json:"shipping_address"`
	ShippingLines     []wireShippingLine `json:"shipping_lines"`
	PaymentGateways   []string           `json:"payment_gateway_names"`
}

type wireLineItem struct {
	SKU      string          `json:"sku"`
	Quantity int             `json:"quantity"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
}

type wireAddress struct {
	Name         string `json:"name"`
	Zip          string `json:"zip"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	Company      string `json:"company"`
	City         string `json:"city"`
	ProvinceCode string `json:"province_code"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone"`
}

type wireShippingLine struct {
	Price decimal.Decimal `json:"price"`
}

// toDomain maps a wire order onto the domain contract
func (w *wireOrder) toDomain() integration.ExternalOrderRecord {
	record := integration.ExternalOrderRecord{
		OrderNum:          w.Name,
		Email:             w.Email,
		Note:              w.Note,
		FinancialStatus:   w.FinancialStatus,
		FulfillmentStatus: w.FulfillmentStatus,
		CancelReason:      w.CancelReason,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		PaymentGateways:   w.PaymentGateways,
	}

	for _, item := range w.LineItems {
		record.LineItems = append(record.LineItems, integration.ExternalLineItem{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Title:    item.Title,
			Price:    item.Price,
		})
	}

	if w.ShippingAddress != nil {
		record.ShippingAddress = integration.ExternalShippingAddress{
			Name:         w.ShippingAddress.Name,
			Zip:          w.ShippingAddress.Zip,
			Address1:     w.ShippingAddress.Address1,
			Address2:     w.ShippingAddress.Address2,
			Company:      w.ShippingAddress.Company,
			City:         w.ShippingAddress.City,
			ProvinceCode: w.ShippingAddress.ProvinceCode,
			CountryCode:  w.ShippingAddress.CountryCode,
			Phone:        w.ShippingAddress.Phone,
		}
	}

	for _, line := range w.ShippingLines {
		record.ShippingCost = record.ShippingCost.Add(line.Price)
	}

	return record
}
