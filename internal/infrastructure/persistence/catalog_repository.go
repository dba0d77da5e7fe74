package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/picksync/backend/internal/domain/catalog"
	"github.com/picksync/backend/internal/domain/shared"
)

// GormCatalogRepository implements catalog.Repository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// GroupIDForSKU returns the group id for a SKU code
func (r *GormCatalogRepository) GroupIDForSKU(ctx context.Context, code string) (string, error) {
	var mapping catalog.SkuMapping
	if err := r.db.WithContext(ctx).First(&mapping, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", shared.ErrMissingMapping
		}
		return "", err
	}
	return mapping.GroupID, nil
}

// SupplierForSKU returns the designated supplier for a SKU code. Unmapped
// codes and groups without a supplier resolve to the empty string.
func (r *GormCatalogRepository) SupplierForSKU(ctx context.Context, code string) (string, error) {
	groupID, err := r.GroupIDForSKU(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrMissingMapping) {
			return "", nil
		}
		return "", err
	}

	var group catalog.ProductGroup
	if err := r.db.WithContext(ctx).First(&group, "group_id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return group.Supplier, nil
}

// BrandForGroup returns the brand of a product group, empty if unknown
func (r *GormCatalogRepository) BrandForGroup(ctx context.Context, groupID string) (string, error) {
	var group catalog.ProductGroup
	if err := r.db.WithContext(ctx).First(&group, "group_id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return group.Brand, nil
}
