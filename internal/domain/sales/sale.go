// Package sales contains the Sales bounded context: the canonical ledger
// record for an imported order and the ports used to persist it.
package sales

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrMissingOrderID    = errors.New("sales: order document has no id")
	ErrMissingDateClosed = errors.New("sales: order document has no closing date")
	ErrDuplicateOrder    = errors.New("sales: order already imported")
	ErrSaleNotFound      = errors.New("sales: sale not found")
)

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the normalized order status stored alongside the raw platform
// status. The ledger distinguishes only settled and not-settled sales.
type Status string

const (
	// StatusPaid marks a settled sale
	StatusPaid Status = "Pago"
	// StatusCancelled marks everything that is not settled
	StatusCancelled Status = "Cancelado"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// NormalizeStatus maps a raw platform status to the normalized ledger status.
// Any casing of "paid" normalizes to Pago; every other status, including the
// empty one, normalizes to Cancelado.
func NormalizeStatus(raw string) Status {
	if strings.EqualFold(strings.TrimSpace(raw), "paid") {
		return StatusPaid
	}
	return StatusCancelled
}

// ---------------------------------------------------------------------------
// Sale Entity
// ---------------------------------------------------------------------------

// Sale is the canonical order record kept in the local ledger. order_id and
// account_id are immutable identity; enrichment fields are resolved through
// the effective-dated SKU lookup at import time. Optional remote sections map
// to nil fields.
type Sale struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"type:varchar(50);not null;uniqueIndex"`
	AccountID int64  `gorm:"not null;index:idx_sales_account_closed,priority:1"`

	// Buyer
	BuyerID        *int64  `gorm:"index"`
	BuyerNickname  *string `gorm:"type:varchar(100)"`
	BuyerEmail     *string `gorm:"type:varchar(255)"`
	BuyerFirstName *string `gorm:"type:varchar(100)"`
	BuyerLastName  *string `gorm:"type:varchar(100)"`

	// Commercial
	ItemID      *string          `gorm:"type:varchar(50);index"`
	ItemTitle   *string          `gorm:"type:varchar(255)"`
	Quantity    *int64           `gorm:""`
	UnitPrice   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalAmount *decimal.Decimal `gorm:"type:decimal(18,4)"`

	Status       string    `gorm:"type:varchar(50)"` // raw platform status
	StatusDetail *string   `gorm:"type:varchar(100)"`
	StatusNorm   Status    `gorm:"type:varchar(20);column:status_norm"`
	DateClosed   time.Time `gorm:"not null;index:idx_sales_account_closed,priority:2"`

	// Shipping
	ShippingID     *int64  `gorm:""`
	ShippingStatus *string `gorm:"type:varchar(50)"`
	City           *string `gorm:"type:varchar(100)"`
	State          *string `gorm:"type:varchar(100)"`
	Country        *string `gorm:"type:varchar(10)"`
	ZipCode        *string `gorm:"type:varchar(20)"`
	StreetName     *string `gorm:"type:varchar(255)"`
	StreetNumber   *string `gorm:"type:varchar(20)"`

	// SKU enrichment (effective-dated at DateClosed)
	SellerSKU   *string          `gorm:"type:varchar(50);column:seller_sku"`
	QuantitySKU *int64           `gorm:"column:quantity_sku"`
	UnitCost    *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Level1      *string          `gorm:"type:varchar(100)"`
	Level2      *string          `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (Sale) TableName() string {
	return "sales"
}

// ---------------------------------------------------------------------------
// Repository Port
// ---------------------------------------------------------------------------

// Patch is a field-level update for one stored sale, keyed by its order id.
// Fields maps column names to new values; the identity columns never appear.
type Patch struct {
	OrderID string
	Fields  map[string]any
}

// DateSpan is the closed-order date range stored for one account.
type DateSpan struct {
	Min time.Time
	Max time.Time
}

// StatusChange records a raw-status transition observed during a historical
// status review.
type StatusChange struct {
	OrderID   string
	OldStatus string
	NewStatus string
}

// SaleRepository is the persistence gateway for the sales ledger.
type SaleRepository interface {
	// ExistsByOrderID reports whether an order id is already stored
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)

	// Insert stores a new sale; re-inserting an existing order id fails with
	// ErrDuplicateOrder
	Insert(ctx context.Context, sale *Sale) error

	// InsertBatch stores a set of sales inside a single transaction; callers
	// filter out already-stored order ids first
	InsertBatch(ctx context.Context, batch []*Sale) error

	// UpdateStatus patches only the raw and normalized status columns
	UpdateStatus(ctx context.Context, orderID string, raw string, norm Status) error

	// Watermark returns max(date_closed) for the account, or nil when the
	// account has no rows
	Watermark(ctx context.Context, accountID int64) (*time.Time, error)

	// DateSpan returns the min/max date_closed for the account, or nil when
	// the account has no rows
	DateSpan(ctx context.Context, accountID int64) (*DateSpan, error)

	// OrderIDsInWindow lists order ids for the account with date_closed in
	// [since, until]; a nil until means "up to now"
	OrderIDsInWindow(ctx context.Context, accountID int64, since time.Time, until *time.Time) ([]string, error)

	// FindByOrderIDs loads stored sales for a set of order ids in one query
	FindByOrderIDs(ctx context.Context, orderIDs []string) ([]Sale, error)

	// ApplyPatches applies field-level updates inside a single transaction;
	// any failure rolls back the whole batch
	ApplyPatches(ctx context.Context, patches []Patch) error

	// BackfillSKUFields re-applies the current SKU bindings to every sale in
	// one set-based update, returning the number of affected rows
	BackfillSKUFields(ctx context.Context) (int64, error)
}
