package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// SkuMapping links a sellable SKU code to its product family
type SkuMapping struct {
	Code    string          `gorm:"primaryKey"`
	GroupID string          `gorm:"column:group_id;not null;index"`
	Weight  decimal.Decimal `gorm:"type:decimal(18,4)"`
}

// TableName returns the table name for GORM
func (SkuMapping) TableName() string {
	return "sku_mappings"
}

// ProductGroup carries the family-level attributes shared by the SKUs of a
// group, including the designated supplier used by the fallback chain.
type ProductGroup struct {
	GroupID  string `gorm:"column:group_id;primaryKey"`
	Supplier string
	Brand    string
}

// TableName returns the table name for GORM
func (ProductGroup) TableName() string {
	return "product_groups"
}

// Repository resolves SKU codes to their group and supplier designation.
// A missing mapping is a data-integrity condition, not a failure: callers
// skip the affected tier and keep going.
type Repository interface {
	// GroupIDForSKU returns the group id for a SKU code, or
	// shared.ErrMissingMapping when the code is unmapped.
	GroupIDForSKU(ctx context.Context, code string) (string, error)

	// SupplierForSKU returns the designated supplier for a SKU code.
	// An unmapped code or a group without a supplier yields an empty string.
	SupplierForSKU(ctx context.Context, code string) (string, error)

	// BrandForGroup returns the brand of a product group, empty if unknown
	BrandForGroup(ctx context.Context, groupID string) (string, error)
}
