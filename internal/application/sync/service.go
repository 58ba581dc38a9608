// Package sync pulls orders from the remote platform into the local sales
// ledger. Full imports walk month-sized windows page by page; incremental
// imports resume from the newest stored close date.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/catalog"
	"github.com/nexus/backend/internal/domain/integration"
	"github.com/nexus/backend/internal/domain/sales"
)

const (
	// DefaultLookbackMonths is how far back a full import reaches on an
	// empty ledger.
	DefaultLookbackMonths = 12

	// reviewOffsetCap stops the historical status sweep from paging past
	// the platform's deep-offset limit.
	reviewOffsetCap = 10000
)

// Config tunes the import service. Zero values fall back to defaults.
type Config struct {
	PageSize       int
	LookbackMonths int
}

func (c *Config) normalize() {
	if c.PageSize <= 0 {
		c.PageSize = integration.DefaultPageSize
	}
	if c.LookbackMonths <= 0 {
		c.LookbackMonths = DefaultLookbackMonths
	}
}

// Summary aggregates a multi-account sync pass. Failed accounts are counted,
// not fatal; one broken credential must not stall the rest of the fleet.
type Summary struct {
	Accounts int `json:"accounts"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// Service implements ledger ingestion for one platform.
type Service struct {
	platform integration.OrderPlatform
	repo     sales.SaleRepository
	lookup   catalog.SKULookup
	accounts integration.AccountDirectory
	cfg      Config
	logger   *zap.Logger
}

func NewService(platform integration.OrderPlatform, repo sales.SaleRepository, lookup catalog.SKULookup, accounts integration.AccountDirectory, cfg Config, logger *zap.Logger) *Service {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		platform: platform,
		repo:     repo,
		lookup:   lookup,
		accounts: accounts,
		cfg:      cfg,
		logger:   logger,
	}
}

// FullImport walks the account's history in month windows, oldest first, and
// stores every order not yet in the ledger. The window spans the stored
// date_closed range when the account already has rows, otherwise the
// configured lookback ending now. Already-stored order ids are skipped, so
// re-running a full import is safe.
func (s *Service) FullImport(ctx context.Context, accountID int64) (int, error) {
	span, err := s.repo.DateSpan(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("sync: date span for account %d: %w", accountID, err)
	}

	until := time.Now().UTC()
	since := until.AddDate(0, -s.cfg.LookbackMonths, 0)
	if span != nil {
		since, until = span.Min, span.Max
	}

	s.logger.Info("full import started",
		zap.Int64("account_id", accountID),
		zap.Time("since", since),
		zap.Time("until", until))

	imported := 0
	cursor := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(until) {
		monthEnd := cursor.AddDate(0, 1, 0).Add(-time.Second)
		n, err := s.importWindow(ctx, accountID, cursor, monthEnd)
		imported += n
		if err != nil {
			return imported, err
		}
		cursor = cursor.AddDate(0, 1, 0)
	}

	s.logger.Info("full import finished",
		zap.Int64("account_id", accountID),
		zap.Int("imported", imported))
	return imported, nil
}

// importWindow pages one date window ascending and inserts unseen orders.
// Each page commits as one batch before the next page is requested.
func (s *Service) importWindow(ctx context.Context, accountID int64, from, to time.Time) (int, error) {
	imported := 0
	offset := 0
	for {
		req := &integration.OrderSearchRequest{
			AccountID: accountID,
			Offset:    offset,
			Limit:     s.cfg.PageSize,
			Sort:      integration.SortDateAsc,
			DateFrom:  &from,
			DateTo:    &to,
		}
		page, err := s.platform.SearchOrders(ctx, req)
		if err != nil {
			return imported, fmt.Errorf("sync: search offset %d: %w", offset, err)
		}

		var batch []*sales.Sale
		for i := range page.Results {
			doc := &page.Results[i]
			exists, err := s.repo.ExistsByOrderID(ctx, string(doc.ID))
			if err != nil {
				return imported, fmt.Errorf("sync: existence check: %w", err)
			}
			if exists {
				continue
			}
			sale, err := sales.MapOrder(ctx, doc, accountID, s.lookup)
			if err != nil {
				s.logger.Warn("order document skipped",
					zap.String("order_id", string(doc.ID)),
					zap.Error(err))
				continue
			}
			batch = append(batch, sale)
		}
		if len(batch) > 0 {
			if err := s.repo.InsertBatch(ctx, batch); err != nil {
				return imported, fmt.Errorf("sync: insert page at offset %d: %w", offset, err)
			}
			imported += len(batch)
		}

		if page.IsShort() {
			return imported, nil
		}
		offset += s.cfg.PageSize
	}
}

// IncrementalImport issues one newest-first search bounded below at the
// account's newest stored close date and processes just that page: new
// orders are inserted, orders already stored get their status refreshed
// when the platform reports a different one. Anything older than the page
// is left for the periodic runs that follow. An empty ledger falls back to
// a full import.
func (s *Service) IncrementalImport(ctx context.Context, accountID int64) (int, error) {
	watermark, err := s.repo.Watermark(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("sync: watermark for account %d: %w", accountID, err)
	}
	if watermark == nil {
		return s.FullImport(ctx, accountID)
	}

	req := &integration.OrderSearchRequest{
		AccountID: accountID,
		Limit:     s.cfg.PageSize,
		Sort:      integration.SortDateDesc,
		DateFrom:  watermark,
	}
	page, err := s.platform.SearchOrders(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("sync: incremental search for account %d: %w", accountID, err)
	}

	imported := 0
	var batch []*sales.Sale
	for i := range page.Results {
		doc := &page.Results[i]
		stored, err := s.repo.FindByOrderIDs(ctx, []string{string(doc.ID)})
		if err != nil {
			return imported, fmt.Errorf("sync: load stored order: %w", err)
		}
		if len(stored) > 0 {
			if err := s.refreshStatus(ctx, &stored[0], doc); err != nil {
				return imported, err
			}
			continue
		}
		sale, err := sales.MapOrder(ctx, doc, accountID, s.lookup)
		if err != nil {
			s.logger.Warn("order document skipped",
				zap.String("order_id", string(doc.ID)),
				zap.Error(err))
			continue
		}
		batch = append(batch, sale)
	}
	if len(batch) > 0 {
		if err := s.repo.InsertBatch(ctx, batch); err != nil {
			return imported, fmt.Errorf("sync: insert incremental page: %w", err)
		}
		imported = len(batch)
	}

	s.logger.Info("incremental import finished",
		zap.Int64("account_id", accountID),
		zap.Time("watermark", *watermark),
		zap.Int("imported", imported))
	return imported, nil
}

// refreshStatus updates the stored raw and normalized status when the remote
// document reports a different one.
func (s *Service) refreshStatus(ctx context.Context, stored *sales.Sale, doc *integration.OrderDocument) error {
	raw := strings.TrimSpace(doc.Status)
	if raw == "" || strings.TrimSpace(stored.Status) == raw {
		return nil
	}
	norm := sales.NormalizeStatus(raw)
	if err := s.repo.UpdateStatus(ctx, stored.OrderID, raw, norm); err != nil {
		return fmt.Errorf("sync: refresh status of %s: %w", stored.OrderID, err)
	}
	s.logger.Info("order status refreshed",
		zap.String("order_id", stored.OrderID),
		zap.String("old", stored.Status),
		zap.String("new", raw))
	return nil
}

// SyncAll runs an incremental import for every registered account. Accounts
// fail independently; the summary reports how many could not complete.
func (s *Service) SyncAll(ctx context.Context) (*Summary, error) {
	ids, err := s.accounts.AccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list accounts: %w", err)
	}

	summary := &Summary{Accounts: len(ids)}
	for _, accountID := range ids {
		n, err := s.IncrementalImport(ctx, accountID)
		summary.Imported += n
		if err != nil {
			summary.Failed++
			s.logger.Error("account sync failed",
				zap.Int64("account_id", accountID),
				zap.Error(err))
		}
	}
	return summary, nil
}

// ReviewHistoricalStatus sweeps the account's stored window newest first and
// realigns statuses that changed remotely after import, typically late
// cancellations. The sweep stops at the platform's deep-offset cap.
func (s *Service) ReviewHistoricalStatus(ctx context.Context, accountID int64) ([]sales.StatusChange, error) {
	span, err := s.repo.DateSpan(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("sync: date span for account %d: %w", accountID, err)
	}
	if span == nil {
		return nil, nil
	}

	var changes []sales.StatusChange
	offset := 0
	for offset < reviewOffsetCap {
		req := &integration.OrderSearchRequest{
			AccountID: accountID,
			Offset:    offset,
			Limit:     s.cfg.PageSize,
			Sort:      integration.SortDateDesc,
			DateFrom:  &span.Min,
			DateTo:    &span.Max,
		}
		page, err := s.platform.SearchOrders(ctx, req)
		if err != nil {
			return changes, fmt.Errorf("sync: status review search: %w", err)
		}

		for i := range page.Results {
			doc := &page.Results[i]
			raw := strings.TrimSpace(doc.Status)
			if raw == "" {
				continue
			}
			stored, err := s.repo.FindByOrderIDs(ctx, []string{string(doc.ID)})
			if err != nil {
				return changes, fmt.Errorf("sync: load stored order: %w", err)
			}
			if len(stored) == 0 || strings.EqualFold(strings.TrimSpace(stored[0].Status), raw) {
				continue
			}
			if err := s.repo.UpdateStatus(ctx, stored[0].OrderID, raw, sales.NormalizeStatus(raw)); err != nil {
				return changes, fmt.Errorf("sync: review update %s: %w", stored[0].OrderID, err)
			}
			changes = append(changes, sales.StatusChange{
				OrderID:   stored[0].OrderID,
				OldStatus: stored[0].Status,
				NewStatus: raw,
			})
		}

		if page.IsShort() {
			break
		}
		offset += s.cfg.PageSize
	}
	return changes, nil
}
