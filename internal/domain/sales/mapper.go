package sales

import (
	"context"
	"fmt"

	"github.com/nexus/backend/internal/domain/catalog"
	"github.com/nexus/backend/internal/domain/integration"
)

// MapOrder converts a raw remote order document into a canonical Sale.
//
// The conversion is pure apart from the supplied SKU lookup. Absent optional
// sections (buyer, order_items, shipping) yield nil fields, never an error;
// only the identity fields — order id and closing date — are mandatory.
// The lookup resolves SKU enrichment as of the order's closing date so that
// later edits to the SKU master do not rewrite historical sales. A nil lookup
// skips enrichment entirely.
func MapOrder(ctx context.Context, doc *integration.OrderDocument, accountID int64, lookup catalog.SKULookup) (*Sale, error) {
	if doc.ID.String() == "" {
		return nil, ErrMissingOrderID
	}
	if doc.DateClosed == nil {
		return nil, ErrMissingDateClosed
	}

	sale := &Sale{
		OrderID:      doc.ID.String(),
		AccountID:    accountID,
		TotalAmount:  doc.TotalAmount,
		Status:       doc.Status,
		StatusDetail: doc.StatusDetail,
		StatusNorm:   NormalizeStatus(doc.Status),
		DateClosed:   *doc.DateClosed,
	}

	if buyer := doc.Buyer; buyer != nil {
		sale.BuyerID = buyer.ID
		sale.BuyerNickname = buyer.Nickname
		sale.BuyerEmail = buyer.Email
		sale.BuyerFirstName = buyer.FirstName
		sale.BuyerLastName = buyer.LastName
	}

	if line := doc.FirstItem(); line != nil {
		sale.Quantity = line.Quantity
		sale.UnitPrice = line.UnitPrice
		if line.Item != nil {
			sale.ItemID = line.Item.ID
			sale.ItemTitle = line.Item.Title
		}
	}

	if ship := doc.Shipping; ship != nil {
		sale.ShippingID = ship.ID
		sale.ShippingStatus = ship.Status
		if addr := ship.ReceiverAddress; addr != nil {
			if addr.City != nil {
				sale.City = addr.City.Name
			}
			if addr.State != nil {
				sale.State = addr.State.Name
			}
			if addr.Country != nil {
				sale.Country = addr.Country.ID
			}
			sale.ZipCode = addr.ZipCode
			sale.StreetName = addr.StreetName
			sale.StreetNumber = addr.StreetNumber
		}
	}

	if lookup != nil && sale.ItemID != nil {
		enrichment, err := lookup(ctx, *sale.ItemID, sale.DateClosed)
		if err != nil {
			return nil, fmt.Errorf("sales: sku lookup for item %s: %w", *sale.ItemID, err)
		}
		if enrichment != nil {
			sku := enrichment.SKU
			qty := enrichment.QuantityPerUnit
			cost := enrichment.UnitCost
			l1 := enrichment.Level1
			l2 := enrichment.Level2
			sale.SellerSKU = &sku
			sale.QuantitySKU = &qty
			sale.UnitCost = &cost
			sale.Level1 = &l1
			sale.Level2 = &l2
		}
	}

	return sale, nil
}
