package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nexus/backend/internal/domain/sales"
)

// GormSaleRepository implements SaleRepository using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// ExistsByOrderID checks if a sale with the given order id is already stored
func (r *GormSaleRepository) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&sales.Sale{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert stores a single sale
func (r *GormSaleRepository) Insert(ctx context.Context, sale *sales.Sale) error {
	if err := r.db.WithContext(ctx).Create(sale).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return sales.ErrDuplicateOrder
		}
		return err
	}
	return nil
}

// InsertBatch stores a set of sales inside a single transaction
func (r *GormSaleRepository) InsertBatch(ctx context.Context, batch []*sales.Sale) error {
	if len(batch) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return sales.ErrDuplicateOrder
			}
			return err
		}
		return nil
	})
}

// UpdateStatus patches only the raw and normalized status columns
func (r *GormSaleRepository) UpdateStatus(ctx context.Context, orderID string, raw string, norm sales.Status) error {
	result := r.db.WithContext(ctx).
		Model(&sales.Sale{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"status":      raw,
			"status_norm": norm,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sales.ErrSaleNotFound
	}
	return nil
}

// Watermark returns max(date_closed) for the account, nil when empty
func (r *GormSaleRepository) Watermark(ctx context.Context, accountID int64) (*time.Time, error) {
	var max sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&sales.Sale{}).
		Where("account_id = ?", accountID).
		Select("MAX(date_closed)").
		Row().Scan(&max)
	if err != nil {
		return nil, err
	}
	if !max.Valid {
		return nil, nil
	}
	t := max.Time.UTC()
	return &t, nil
}

// DateSpan returns min/max date_closed for the account, nil when empty
func (r *GormSaleRepository) DateSpan(ctx context.Context, accountID int64) (*sales.DateSpan, error) {
	var min, max sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&sales.Sale{}).
		Where("account_id = ?", accountID).
		Select("MIN(date_closed), MAX(date_closed)").
		Row().Scan(&min, &max)
	if err != nil {
		return nil, err
	}
	if !min.Valid || !max.Valid {
		return nil, nil
	}
	return &sales.DateSpan{Min: min.Time.UTC(), Max: max.Time.UTC()}, nil
}

// OrderIDsInWindow lists order ids for the account with date_closed in the window
func (r *GormSaleRepository) OrderIDsInWindow(ctx context.Context, accountID int64, since time.Time, until *time.Time) ([]string, error) {
	query := r.db.WithContext(ctx).
		Model(&sales.Sale{}).
		Where("account_id = ? AND date_closed >= ?", accountID, since)
	if until != nil {
		query = query.Where("date_closed <= ?", *until)
	}

	var ids []string
	if err := query.Order("date_closed ASC").Pluck("order_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByOrderIDs loads stored sales for a set of order ids in one query
func (r *GormSaleRepository) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]sales.Sale, error) {
	if len(orderIDs) == 0 {
		return []sales.Sale{}, nil
	}
	var rows []sales.Sale
	if err := r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyPatches applies field-level updates inside a single transaction.
// Any failing update rolls back the whole batch.
func (r *GormSaleRepository) ApplyPatches(ctx context.Context, patches []sales.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, patch := range patches {
			if len(patch.Fields) == 0 {
				continue
			}
			if err := tx.Model(&sales.Sale{}).
				Where("order_id = ?", patch.OrderID).
				Updates(patch.Fields).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// backfillSKUSQL re-applies the current SKU bindings to every sale in one
// set-based update. The version joined in is the one effective at the sale's
// close date.
const backfillSKUSQL = `
UPDATE sales SET
	seller_sku   = b.sku,
	quantity_sku = v.quantity,
	unit_cost    = v.unit_cost,
	level1       = v.level1,
	level2       = v.level2
FROM sku_bindings b
JOIN sku_versions v ON v.sku = b.sku
WHERE sales.item_id = b.item_id
  AND v.effective_from = (
	SELECT MAX(v2.effective_from)
	FROM sku_versions v2
	WHERE v2.sku = b.sku AND v2.effective_from <= sales.date_closed
  )`

// BackfillSKUFields runs the set-based SKU enrichment update and returns the
// number of affected rows
func (r *GormSaleRepository) BackfillSKUFields(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Exec(backfillSKUSQL)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormSaleRepository implements SaleRepository
var _ sales.SaleRepository = (*GormSaleRepository)(nil)
