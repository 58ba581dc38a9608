// Package catalog contains the Catalog bounded context: the SKU master data
// used to enrich imported sales with cost and category information.
//
// SKU records are effective-dated. Editing a SKU appends a new version rather
// than mutating the old one, so a sale closed in the past keeps the cost and
// category that were valid at its closing date.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// SKUVersion is one time-stamped version of a SKU master record.
type SKUVersion struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	SKU           string          `gorm:"type:varchar(50);not null;index:idx_sku_versions_sku_effective,priority:1"`
	Quantity      int64           `gorm:"not null;default:1"` // units per SKU pack
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Level1        string          `gorm:"type:varchar(100)"` // category hierarchy level 1
	Level2        string          `gorm:"type:varchar(100)"` // category hierarchy level 2
	EffectiveFrom time.Time       `gorm:"not null;index:idx_sku_versions_sku_effective,priority:2"`
}

// TableName returns the table name for GORM
func (SKUVersion) TableName() string {
	return "sku_versions"
}

// ItemBinding maps a remote listing/item id to an internal SKU code.
type ItemBinding struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	ItemID string `gorm:"type:varchar(50);not null;uniqueIndex"`
	SKU    string `gorm:"type:varchar(50);not null;index"`
}

// TableName returns the table name for GORM
func (ItemBinding) TableName() string {
	return "sku_bindings"
}

// ---------------------------------------------------------------------------
// Enrichment
// ---------------------------------------------------------------------------

// Enrichment carries the SKU-derived fields attached to a sale.
type Enrichment struct {
	SKU             string
	QuantityPerUnit int64
	UnitCost        decimal.Decimal
	Level1          string
	Level2          string
}

// SKULookup resolves a remote item id to the enrichment valid as of the given
// timestamp. A nil result with nil error means the item has no SKU binding;
// callers leave the enrichment fields empty in that case.
type SKULookup func(ctx context.Context, itemID string, asOf time.Time) (*Enrichment, error)

// SKUResolver is the port for effective-dated SKU resolution.
type SKUResolver interface {
	// Resolve maps an item id through the binding index and selects the most
	// recent SKU version with EffectiveFrom <= asOf. Returns nil when the item
	// is unbound or no version was effective yet.
	Resolve(ctx context.Context, itemID string, asOf time.Time) (*Enrichment, error)
}

// ---------------------------------------------------------------------------
// Version selection
// ---------------------------------------------------------------------------

// SelectVersion picks the most recent version with EffectiveFrom <= asOf.
// Returns nil if no version was effective at that time.
func SelectVersion(versions []SKUVersion, asOf time.Time) *SKUVersion {
	var best *SKUVersion
	for i := range versions {
		v := &versions[i]
		if v.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || v.EffectiveFrom.After(best.EffectiveFrom) {
			best = v
		}
	}
	return best
}

// Enrichment converts a version into the enrichment attached to a sale.
func (v *SKUVersion) Enrichment() *Enrichment {
	return &Enrichment{
		SKU:             v.SKU,
		QuantityPerUnit: v.Quantity,
		UnitCost:        v.UnitCost,
		Level1:          v.Level1,
		Level2:          v.Level2,
	}
}
