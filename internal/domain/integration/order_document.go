package integration

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// OrderDocument
// ---------------------------------------------------------------------------

// FlexID is an identifier that the remote API serializes either as a JSON
// number or as a string depending on the endpoint.
type FlexID string

// UnmarshalJSON accepts both quoted and unquoted identifiers.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		if data[len(data)-1] != '"' || len(data) < 2 {
			return fmt.Errorf("integration: malformed id %q", data)
		}
		*f = FlexID(data[1 : len(data)-1])
		return nil
	}
	*f = FlexID(data)
	return nil
}

// String returns the id as a string.
func (f FlexID) String() string {
	return string(f)
}

// OrderDocument is the raw remote order document. Every nested section is
// optional; absent sections decode to nil rather than failing.
type OrderDocument struct {
	ID           FlexID           `json:"id"`
	Status       string           `json:"status"`
	StatusDetail *string          `json:"status_detail"`
	DateClosed   *time.Time       `json:"date_closed"`
	TotalAmount  *decimal.Decimal `json:"total_amount"`
	Buyer        *BuyerSection    `json:"buyer"`
	OrderItems   []OrderItem      `json:"order_items"`
	Shipping     *ShippingSection `json:"shipping"`
}

// BuyerSection is the optional buyer sub-object of an order document.
type BuyerSection struct {
	ID        *int64  `json:"id"`
	Nickname  *string `json:"nickname"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// OrderItem is one line of the optional order_items array.
type OrderItem struct {
	Item      *ItemSection     `json:"item"`
	Quantity  *int64           `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// ItemSection is the optional item sub-object of an order line.
type ItemSection struct {
	ID    *string `json:"id"`
	Title *string `json:"title"`
}

// ShippingSection is the optional shipping sub-object of an order document.
type ShippingSection struct {
	ID              *int64           `json:"id"`
	Status          *string          `json:"status"`
	ReceiverAddress *ReceiverAddress `json:"receiver_address"`
}

// ReceiverAddress is the optional delivery address of a shipment.
type ReceiverAddress struct {
	City         *NamedRef `json:"city"`
	State        *NamedRef `json:"state"`
	Country      *CodedRef `json:"country"`
	ZipCode      *string   `json:"zip_code"`
	StreetName   *string   `json:"street_name"`
	StreetNumber *string   `json:"street_number"`
}

// NamedRef is a reference object carrying a display name.
type NamedRef struct {
	Name *string `json:"name"`
}

// CodedRef is a reference object carrying an identifier code.
type CodedRef struct {
	ID *string `json:"id"`
}

// FirstItem returns the first order line, or nil if the document has none.
// The ledger models single-line sales; multi-line orders take the first line,
// matching the upstream importer.
func (d *OrderDocument) FirstItem() *OrderItem {
	if len(d.OrderItems) == 0 {
		return nil
	}
	return &d.OrderItems[0]
}
