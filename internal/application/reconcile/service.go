// Package reconcile re-verifies stored sales against the remote platform and
// repairs drift. Remote documents are re-fetched concurrently, re-mapped, and
// compared field by field with a tolerance-aware diff; accumulated patches are
// applied in per-chunk transactions.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/catalog"
	"github.com/nexus/backend/internal/domain/integration"
	"github.com/nexus/backend/internal/domain/sales"
)

const (
	// DefaultChunkSize bounds how many order ids a single pass holds in
	// memory and how many patches a single transaction carries.
	DefaultChunkSize = 1000

	// DefaultMaxWorkers bounds concurrent remote fetches per chunk.
	DefaultMaxWorkers = 12

	// DefaultWindowMonths is how far back reconciliation reaches when the
	// caller gives no lower bound.
	DefaultWindowMonths = 6
)

// Config tunes a Service. Zero values fall back to the defaults above.
type Config struct {
	ChunkSize    int
	MaxWorkers   int
	Tolerance    decimal.Decimal
	WindowMonths int
}

func (c *Config) normalize() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.Tolerance.IsZero() {
		c.Tolerance = DefaultTolerance
	}
	if c.WindowMonths <= 0 {
		c.WindowMonths = DefaultWindowMonths
	}
}

// Result summarizes one reconciliation run.
type Result struct {
	Scanned     int `json:"scanned"`
	Updated     int `json:"updated"`
	FetchErrors int `json:"fetch_errors"`
}

// Window bounds the reconciliation pass by date_closed. A nil Until means
// open-ended; a zero Since falls back to the configured lookback.
type Window struct {
	Since time.Time
	Until *time.Time
}

// Service drives reconciliation for one account at a time.
type Service struct {
	platform integration.OrderPlatform
	tokens   integration.TokenProvider
	repo     sales.SaleRepository
	lookup   catalog.SKULookup
	cfg      Config
	logger   *zap.Logger
}

// NewService wires a reconciliation service. lookup may be nil when SKU
// enrichment is not available; lookup-derived columns are then dropped from
// every patch so enriched rows keep the values written at import time.
func NewService(platform integration.OrderPlatform, tokens integration.TokenProvider, repo sales.SaleRepository, lookup catalog.SKULookup, cfg Config, logger *zap.Logger) *Service {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		platform: platform,
		tokens:   tokens,
		repo:     repo,
		lookup:   lookup,
		cfg:      cfg,
		logger:   logger,
	}
}

// fetchResult carries one remote fetch out of the worker pool.
type fetchResult struct {
	orderID string
	doc     *integration.OrderDocument
	err     error
}

// Reconcile re-fetches every stored order of the account inside the window
// and patches columns that drifted. maxWorkers overrides the configured pool
// size when positive.
//
// Per-order fetch failures are counted and skipped; credential failures and
// database failures abort the run. Patches for a chunk commit or roll back
// together.
func (s *Service) Reconcile(ctx context.Context, accountID int64, window Window, maxWorkers int) (*Result, error) {
	if maxWorkers <= 0 {
		maxWorkers = s.cfg.MaxWorkers
	}
	if window.Since.IsZero() {
		window.Since = time.Now().UTC().AddDate(0, -s.cfg.WindowMonths, 0)
	}

	// Fail fast on credential problems before touching the ledger.
	if _, err := s.tokens.ValidToken(ctx, accountID); err != nil {
		return nil, fmt.Errorf("reconcile: credential for account %d: %w", accountID, err)
	}

	ids, err := s.repo.OrderIDsInWindow(ctx, accountID, window.Since, window.Until)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list order ids: %w", err)
	}

	result := &Result{Scanned: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	s.logger.Info("reconcile started",
		zap.Int64("account_id", accountID),
		zap.Int("orders", len(ids)),
		zap.Int("chunk_size", s.cfg.ChunkSize),
		zap.Int("max_workers", maxWorkers),
		zap.Time("since", window.Since))

	started := time.Now()
	for start := 0; start < len(ids); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.reconcileChunk(ctx, accountID, ids[start:end], maxWorkers, result); err != nil {
			return nil, err
		}
	}

	s.logger.Info("reconcile finished",
		zap.Int64("account_id", accountID),
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("fetch_errors", result.FetchErrors),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (s *Service) reconcileChunk(ctx context.Context, accountID int64, chunk []string, maxWorkers int, result *Result) error {
	stored, err := s.repo.FindByOrderIDs(ctx, chunk)
	if err != nil {
		return fmt.Errorf("reconcile: load chunk: %w", err)
	}
	byID := make(map[string]*sales.Sale, len(stored))
	for i := range stored {
		byID[stored[i].OrderID] = &stored[i]
	}

	fetched := s.fetchChunk(ctx, accountID, chunk, maxWorkers)

	// Patch assembly stays single-threaded: iterate the chunk in its
	// original order so id-to-result correlation is exact.
	var patches []sales.Patch
	for _, orderID := range chunk {
		res, ok := fetched[orderID]
		if !ok {
			continue
		}
		if res.err != nil {
			if errors.Is(res.err, integration.ErrPlatformUnauthorized) {
				return fmt.Errorf("reconcile: account %d: %w", accountID, res.err)
			}
			result.FetchErrors++
			s.logger.Warn("order fetch failed",
				zap.Int64("account_id", accountID),
				zap.String("order_id", orderID),
				zap.Error(res.err))
			continue
		}

		row, ok := byID[orderID]
		if !ok {
			// Deleted locally between listing and loading.
			continue
		}

		candidate, err := sales.MapOrder(ctx, res.doc, accountID, s.lookup)
		if err != nil {
			if errors.Is(err, sales.ErrMissingOrderID) || errors.Is(err, sales.ErrMissingDateClosed) {
				result.FetchErrors++
				s.logger.Warn("remote document unusable",
					zap.String("order_id", orderID),
					zap.Error(err))
				continue
			}
			return fmt.Errorf("reconcile: map order %s: %w", orderID, err)
		}

		patch := Diff(row, candidate, s.cfg.Tolerance)
		if s.lookup == nil {
			DropEnrichment(patch)
		}
		if len(patch) > 0 {
			patches = append(patches, sales.Patch{OrderID: orderID, Fields: patch})
		}
	}

	if len(patches) == 0 {
		return nil
	}
	if err := s.repo.ApplyPatches(ctx, patches); err != nil {
		return fmt.Errorf("reconcile: apply %d patches: %w", len(patches), err)
	}
	result.Updated += len(patches)
	return nil
}

// fetchChunk re-fetches every order of the chunk with a bounded worker pool
// and blocks until all workers are done.
func (s *Service) fetchChunk(ctx context.Context, accountID int64, chunk []string, maxWorkers int) map[string]fetchResult {
	workers := maxWorkers
	if workers > len(chunk) {
		workers = len(chunk)
	}

	jobs := make(chan string)
	results := make(chan fetchResult, len(chunk))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderID := range jobs {
				doc, err := s.platform.GetOrder(ctx, accountID, orderID)
				results <- fetchResult{orderID: orderID, doc: doc, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, orderID := range chunk {
			select {
			case jobs <- orderID:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	fetched := make(map[string]fetchResult, len(chunk))
	for res := range results {
		fetched[res.orderID] = res
	}
	return fetched
}
