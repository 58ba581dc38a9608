package sales

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus/backend/internal/domain/catalog"
	"github.com/nexus/backend/internal/domain/integration"
)

func decodeDoc(t *testing.T, raw string) *integration.OrderDocument {
	t.Helper()
	var doc integration.OrderDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func TestMapOrder_FullDocument(t *testing.T) {
	doc := decodeDoc(t, `{
		"id": 100,
		"status": "paid",
		"status_detail": "accredited",
		"date_closed": "2024-05-01T12:00:00Z",
		"total_amount": 129.90,
		"buyer": {"id": 77, "nickname": "COMPRADOR", "email": "b@x.com", "first_name": "Ana", "last_name": "Lima"},
		"order_items": [{"item": {"id": "MLB123", "title": "Filtro de oleo"}, "quantity": 2, "unit_price": 64.95}],
		"shipping": {"id": 555, "status": "delivered", "receiver_address": {
			"city": {"name": "Campinas"}, "state": {"name": "SP"}, "country": {"id": "BR"},
			"zip_code": "13000-000", "street_name": "Rua A", "street_number": "10"}}
	}`)

	lookup := func(_ context.Context, itemID string, asOf time.Time) (*catalog.Enrichment, error) {
		assert.Equal(t, "MLB123", itemID)
		assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), asOf)
		return &catalog.Enrichment{
			SKU:             "FLT-01",
			QuantityPerUnit: 6,
			UnitCost:        decimal.NewFromFloat(9.90),
			Level1:          "Filtros",
			Level2:          "Oleo",
		}, nil
	}

	sale, err := MapOrder(context.Background(), doc, 42, lookup)
	require.NoError(t, err)

	assert.Equal(t, "100", sale.OrderID)
	assert.Equal(t, int64(42), sale.AccountID)
	assert.Equal(t, "paid", sale.Status)
	assert.Equal(t, StatusPaid, sale.StatusNorm)
	require.NotNil(t, sale.BuyerID)
	assert.Equal(t, int64(77), *sale.BuyerID)
	require.NotNil(t, sale.UnitPrice)
	assert.True(t, sale.UnitPrice.Equal(decimal.NewFromFloat(64.95)))
	require.NotNil(t, sale.City)
	assert.Equal(t, "Campinas", *sale.City)
	require.NotNil(t, sale.SellerSKU)
	assert.Equal(t, "FLT-01", *sale.SellerSKU)
	require.NotNil(t, sale.UnitCost)
	assert.True(t, sale.UnitCost.Equal(decimal.NewFromFloat(9.90)))
	require.NotNil(t, sale.Level1)
	assert.Equal(t, "Filtros", *sale.Level1)
}

func TestMapOrder_MissingSectionsYieldNilFields(t *testing.T) {
	doc := decodeDoc(t, `{"id": "200", "status": "cancelled", "date_closed": "2024-05-02T08:30:00Z", "total_amount": 10.0}`)

	sale, err := MapOrder(context.Background(), doc, 42, nil)
	require.NoError(t, err)

	assert.Nil(t, sale.BuyerID)
	assert.Nil(t, sale.BuyerNickname)
	assert.Nil(t, sale.ItemID)
	assert.Nil(t, sale.Quantity)
	assert.Nil(t, sale.UnitPrice)
	assert.Nil(t, sale.ShippingID)
	assert.Nil(t, sale.City)
	assert.Nil(t, sale.SellerSKU)
	assert.Nil(t, sale.UnitCost)
	assert.Equal(t, StatusCancelled, sale.StatusNorm)
}

func TestMapOrder_MandatoryIdentityFields(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		doc := decodeDoc(t, `{"status": "paid", "date_closed": "2024-05-02T08:30:00Z"}`)
		_, err := MapOrder(context.Background(), doc, 42, nil)
		assert.ErrorIs(t, err, ErrMissingOrderID)
	})

	t.Run("missing date_closed", func(t *testing.T) {
		doc := decodeDoc(t, `{"id": 300, "status": "paid"}`)
		_, err := MapOrder(context.Background(), doc, 42, nil)
		assert.ErrorIs(t, err, ErrMissingDateClosed)
	})
}

func TestMapOrder_UnboundItemLeavesEnrichmentEmpty(t *testing.T) {
	doc := decodeDoc(t, `{
		"id": 400, "status": "paid", "date_closed": "2024-05-02T08:30:00Z",
		"order_items": [{"item": {"id": "MLB999", "title": "Sem SKU"}, "quantity": 1, "unit_price": 5.0}]
	}`)

	lookup := func(context.Context, string, time.Time) (*catalog.Enrichment, error) {
		return nil, nil
	}

	sale, err := MapOrder(context.Background(), doc, 42, lookup)
	require.NoError(t, err)
	assert.Nil(t, sale.SellerSKU)
	assert.Nil(t, sale.QuantitySKU)
	assert.Nil(t, sale.UnitCost)
}

func TestMapOrder_LookupErrorPropagates(t *testing.T) {
	doc := decodeDoc(t, `{
		"id": 500, "status": "paid", "date_closed": "2024-05-02T08:30:00Z",
		"order_items": [{"item": {"id": "MLB1", "title": "X"}, "quantity": 1, "unit_price": 5.0}]
	}`)

	boom := errors.New("db gone")
	lookup := func(context.Context, string, time.Time) (*catalog.Enrichment, error) {
		return nil, boom
	}

	_, err := MapOrder(context.Background(), doc, 42, lookup)
	assert.ErrorIs(t, err, boom)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"paid", StatusPaid},
		{"PAID", StatusPaid},
		{"  Paid ", StatusPaid},
		{"cancelled", StatusCancelled},
		{"confirmed", StatusCancelled},
		{"", StatusCancelled},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeStatus(tt.raw), "raw=%q", tt.raw)
	}
}
