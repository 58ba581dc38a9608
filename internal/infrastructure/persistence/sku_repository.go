package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nexus/backend/internal/domain/catalog"
)

// GormSKUResolver implements SKUResolver using GORM
type GormSKUResolver struct {
	db *gorm.DB
}

// NewGormSKUResolver creates a new GormSKUResolver
func NewGormSKUResolver(db *gorm.DB) *GormSKUResolver {
	return &GormSKUResolver{db: db}
}

// Resolve maps an item id through the binding index and selects the most
// recent SKU version effective at asOf. Returns nil without error when the
// item is unbound or no version was effective yet.
func (r *GormSKUResolver) Resolve(ctx context.Context, itemID string, asOf time.Time) (*catalog.Enrichment, error) {
	var binding catalog.ItemBinding
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var version catalog.SKUVersion
	if err := r.db.WithContext(ctx).
		Where("sku = ? AND effective_from <= ?", binding.SKU, asOf).
		Order("effective_from DESC").
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return version.Enrichment(), nil
}

// Lookup adapts the resolver to the SKULookup function type used by the mapper
func (r *GormSKUResolver) Lookup() catalog.SKULookup {
	return r.Resolve
}

// Ensure GormSKUResolver implements SKUResolver
var _ catalog.SKUResolver = (*GormSKUResolver)(nil)
