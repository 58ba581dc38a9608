package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexus/backend/internal/application/reconcile"
	appsync "github.com/nexus/backend/internal/application/sync"
	"github.com/nexus/backend/internal/domain/integration"
	"github.com/nexus/backend/internal/domain/sales"
	"github.com/nexus/backend/internal/infrastructure/logger"
	"github.com/nexus/backend/internal/interfaces/http/dto"
)

// ImportService is the slice of the sync application service the API exposes
type ImportService interface {
	FullImport(ctx context.Context, accountID int64) (int, error)
	IncrementalImport(ctx context.Context, accountID int64) (int, error)
	SyncAll(ctx context.Context) (*appsync.Summary, error)
	ReviewHistoricalStatus(ctx context.Context, accountID int64) ([]sales.StatusChange, error)
}

// ReconcileService is the slice of the reconcile application service the API exposes
type ReconcileService interface {
	Reconcile(ctx context.Context, accountID int64, window reconcile.Window, maxWorkers int) (*reconcile.Result, error)
}

// SyncHandler handles ledger synchronization endpoints
type SyncHandler struct {
	BaseHandler
	importer   ImportService
	reconciler ReconcileService
	accounts   integration.AccountDirectory
	logger     *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(importer ImportService, reconciler ReconcileService, accounts integration.AccountDirectory, log *zap.Logger) *SyncHandler {
	return &SyncHandler{
		importer:   importer,
		reconciler: reconciler,
		accounts:   accounts,
		logger:     log,
	}
}

// RegisterRoutes registers sync endpoints on the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync/all", h.SyncAll)
	rg.GET("/accounts", h.ListAccounts)
	rg.POST("/accounts/:id/import/full", h.FullImport)
	rg.POST("/accounts/:id/import/incremental", h.IncrementalImport)
	rg.POST("/accounts/:id/reconcile", h.Reconcile)
	rg.POST("/accounts/:id/review-status", h.ReviewStatus)
}

// ImportResponse reports how many orders an import stored
type ImportResponse struct {
	AccountID int64 `json:"account_id"`
	Imported  int   `json:"imported"`
}

// ReconcileRequest narrows a reconcile run; all fields are optional
type ReconcileRequest struct {
	Since      *time.Time `json:"since"`
	Until      *time.Time `json:"until"`
	MaxWorkers int        `json:"max_workers" binding:"omitempty,min=1,max=64"`
}

// StatusChangeResponse describes one realigned order status
type StatusChangeResponse struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// SyncAll imports new orders for every registered account
func (h *SyncHandler) SyncAll(c *gin.Context) {
	summary, err := h.importer.SyncAll(c.Request.Context())
	if err != nil {
		h.platformError(c, err)
		return
	}
	h.Success(c, summary)
}

// ListAccounts returns every seller account with stored credentials
func (h *SyncHandler) ListAccounts(c *gin.Context) {
	ids, err := h.accounts.AccountIDs(c.Request.Context())
	if err != nil {
		h.Internal(c, "failed to list accounts")
		return
	}
	h.Success(c, gin.H{"accounts": ids})
}

// FullImport replays the whole import window for one account
func (h *SyncHandler) FullImport(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}

	imported, err := h.importer.FullImport(c.Request.Context(), accountID)
	if err != nil {
		h.platformError(c, err)
		return
	}
	h.Success(c, ImportResponse{AccountID: accountID, Imported: imported})
}

// IncrementalImport imports orders closed after the stored watermark
func (h *SyncHandler) IncrementalImport(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}

	imported, err := h.importer.IncrementalImport(c.Request.Context(), accountID)
	if err != nil {
		h.platformError(c, err)
		return
	}
	h.Success(c, ImportResponse{AccountID: accountID, Imported: imported})
}

// Reconcile re-reads stored orders from the platform and patches drift
func (h *SyncHandler) Reconcile(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidJSON), dto.ErrCodeInvalidJSON, err.Error())
		return
	}
	if req.Since != nil && req.Until != nil && req.Until.Before(*req.Since) {
		h.BadRequest(c, "until must not precede since")
		return
	}

	window := reconcile.Window{Until: req.Until}
	if req.Since != nil {
		window.Since = *req.Since
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), accountID, window, req.MaxWorkers)
	if err != nil {
		h.platformError(c, err)
		return
	}

	logger.L(c.Request.Context()).Info("Reconciliation finished",
		zap.Int64("account_id", accountID),
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("fetch_errors", result.FetchErrors),
	)
	h.Success(c, result)
}

// ReviewStatus sweeps the account's history realigning paid/cancelled flips
func (h *SyncHandler) ReviewStatus(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}

	changes, err := h.importer.ReviewHistoricalStatus(c.Request.Context(), accountID)
	if err != nil {
		h.platformError(c, err)
		return
	}

	out := make([]StatusChangeResponse, 0, len(changes))
	for _, ch := range changes {
		out = append(out, StatusChangeResponse(ch))
	}
	h.Success(c, gin.H{"account_id": accountID, "changes": out})
}

// accountID parses the :id path parameter
func (h *SyncHandler) accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.BadRequest(c, "invalid account id")
		return 0, false
	}
	return id, true
}

// platformError maps domain errors onto API error codes
func (h *SyncHandler) platformError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, integration.ErrPlatformUnauthorized),
		errors.Is(err, integration.ErrTokenNotFound),
		errors.Is(err, integration.ErrTokenRefreshFailed):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnauthorized, "platform rejected stored credentials")
	case errors.Is(err, integration.ErrPlatformRateLimited):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamRateLimited, "platform rate limit exhausted")
	case errors.Is(err, integration.ErrPlatformUnavailable),
		errors.Is(err, integration.ErrPlatformRequestFailed),
		errors.Is(err, integration.ErrPlatformInvalidResponse):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, "platform request failed")
	case errors.Is(err, context.DeadlineExceeded):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, "platform request timed out")
	default:
		h.logger.Error("Unhandled sync error", zap.Error(err))
		h.Internal(c, "internal error")
	}
}
