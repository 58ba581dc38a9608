package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexus/backend/internal/domain/sales"
)

// DefaultTolerance is the absolute difference below which two numeric values
// are considered equal. Remote APIs return floating-point monetary values with
// representation noise; an exact-equality diff would flag every row on every
// run.
var DefaultTolerance = decimal.NewFromFloat(0.01)

// excludedColumns are identity and linkage fields the diff never proposes
// changes to. seller_sku is pinned at import time by the effective-dated
// lookup and must not drift with later SKU edits.
var excludedColumns = map[string]struct{}{
	"order_id":   {},
	"account_id": {},
	"seller_sku": {},
}

// IsExcluded reports whether a column belongs to the excluded set.
func IsExcluded(column string) bool {
	_, ok := excludedColumns[column]
	return ok
}

// ---------------------------------------------------------------------------
// Column registry
// ---------------------------------------------------------------------------

// saleColumn describes one diffable column of the sales table: how to compare
// the stored and candidate values and which value enters the patch map.
type saleColumn struct {
	name  string
	equal func(stored, candidate *sales.Sale, tol decimal.Decimal) bool
	value func(candidate *sales.Sale) any
}

// saleColumns lists every non-excluded column. Adding a field to the Sale
// entity requires a matching entry here for reconciliation to see it.
var saleColumns = []saleColumn{
	{"buyer_id", func(a, b *sales.Sale, _ decimal.Decimal) bool { return i64PtrEqual(a.BuyerID, b.BuyerID) }, func(s *sales.Sale) any { return s.BuyerID }},
	{"buyer_nickname", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.BuyerNickname, b.BuyerNickname) }, func(s *sales.Sale) any { return s.BuyerNickname }},
	{"buyer_email", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.BuyerEmail, b.BuyerEmail) }, func(s *sales.Sale) any { return s.BuyerEmail }},
	{"buyer_first_name", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.BuyerFirstName, b.BuyerFirstName) }, func(s *sales.Sale) any { return s.BuyerFirstName }},
	{"buyer_last_name", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.BuyerLastName, b.BuyerLastName) }, func(s *sales.Sale) any { return s.BuyerLastName }},
	{"item_id", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.ItemID, b.ItemID) }, func(s *sales.Sale) any { return s.ItemID }},
	{"item_title", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.ItemTitle, b.ItemTitle) }, func(s *sales.Sale) any { return s.ItemTitle }},
	{"quantity", func(a, b *sales.Sale, _ decimal.Decimal) bool { return i64PtrEqual(a.Quantity, b.Quantity) }, func(s *sales.Sale) any { return s.Quantity }},
	{"unit_price", func(a, b *sales.Sale, tol decimal.Decimal) bool { return decPtrEqual(a.UnitPrice, b.UnitPrice, tol) }, func(s *sales.Sale) any { return s.UnitPrice }},
	{"total_amount", func(a, b *sales.Sale, tol decimal.Decimal) bool { return decPtrEqual(a.TotalAmount, b.TotalAmount, tol) }, func(s *sales.Sale) any { return s.TotalAmount }},
	{"status", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strEqual(a.Status, b.Status) }, func(s *sales.Sale) any { return s.Status }},
	{"status_detail", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.StatusDetail, b.StatusDetail) }, func(s *sales.Sale) any { return s.StatusDetail }},
	{"status_norm", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strEqual(string(a.StatusNorm), string(b.StatusNorm)) }, func(s *sales.Sale) any { return s.StatusNorm }},
	{"date_closed", func(a, b *sales.Sale, _ decimal.Decimal) bool { return timeEqual(a.DateClosed, b.DateClosed) }, func(s *sales.Sale) any { return s.DateClosed }},
	{"shipping_id", func(a, b *sales.Sale, _ decimal.Decimal) bool { return i64PtrEqual(a.ShippingID, b.ShippingID) }, func(s *sales.Sale) any { return s.ShippingID }},
	{"shipping_status", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.ShippingStatus, b.ShippingStatus) }, func(s *sales.Sale) any { return s.ShippingStatus }},
	{"city", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.City, b.City) }, func(s *sales.Sale) any { return s.City }},
	{"state", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.State, b.State) }, func(s *sales.Sale) any { return s.State }},
	{"country", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.Country, b.Country) }, func(s *sales.Sale) any { return s.Country }},
	{"zip_code", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.ZipCode, b.ZipCode) }, func(s *sales.Sale) any { return s.ZipCode }},
	{"street_name", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.StreetName, b.StreetName) }, func(s *sales.Sale) any { return s.StreetName }},
	{"street_number", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.StreetNumber, b.StreetNumber) }, func(s *sales.Sale) any { return s.StreetNumber }},
	{"quantity_sku", func(a, b *sales.Sale, _ decimal.Decimal) bool { return i64PtrEqual(a.QuantitySKU, b.QuantitySKU) }, func(s *sales.Sale) any { return s.QuantitySKU }},
	{"unit_cost", func(a, b *sales.Sale, tol decimal.Decimal) bool { return decPtrEqual(a.UnitCost, b.UnitCost, tol) }, func(s *sales.Sale) any { return s.UnitCost }},
	{"level1", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.Level1, b.Level1) }, func(s *sales.Sale) any { return s.Level1 }},
	{"level2", func(a, b *sales.Sale, _ decimal.Decimal) bool { return strPtrEqual(a.Level2, b.Level2) }, func(s *sales.Sale) any { return s.Level2 }},
}

// enrichmentColumns are filled by the SKU lookup rather than by the remote
// document. A candidate mapped without a lookup carries nil for all of them,
// so patching would wipe values written by earlier enriched imports.
var enrichmentColumns = [...]string{"quantity_sku", "unit_cost", "level1", "level2"}

// DropEnrichment removes the lookup-derived columns from a patch map.
func DropEnrichment(patch map[string]any) {
	for _, col := range enrichmentColumns {
		delete(patch, col)
	}
}

// Diff compares every non-excluded column of a stored sale against the
// candidate re-mapped from the remote document. It returns the patch map of
// changed columns with their candidate values, or nil when nothing differs.
func Diff(stored, candidate *sales.Sale, tol decimal.Decimal) map[string]any {
	var patch map[string]any
	for _, col := range saleColumns {
		if col.equal(stored, candidate, tol) {
			continue
		}
		if patch == nil {
			patch = make(map[string]any)
		}
		patch[col.name] = col.value(candidate)
	}
	return patch
}

// ---------------------------------------------------------------------------
// Type-aware comparisons
// ---------------------------------------------------------------------------

// strEqual compares strings after trimming leading/trailing whitespace.
func strEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strEqual(*a, *b)
}

// decPtrEqual treats two numeric values as equal when their absolute
// difference does not exceed the tolerance.
func decPtrEqual(a, b *decimal.Decimal, tol decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return !a.Sub(*b).Abs().GreaterThan(tol)
}

func i64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timeEqual(a, b time.Time) bool {
	return a.Equal(b)
}
