package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexus/backend/internal/application/reconcile"
	appsync "github.com/nexus/backend/internal/application/sync"
	"github.com/nexus/backend/internal/domain/integration"
	"github.com/nexus/backend/internal/domain/sales"
	"github.com/nexus/backend/internal/interfaces/http/dto"
)

type stubImporter struct {
	imported int
	summary  *appsync.Summary
	changes  []sales.StatusChange
	err      error

	fullCalls        []int64
	incrementalCalls []int64
}

func (s *stubImporter) FullImport(_ context.Context, accountID int64) (int, error) {
	s.fullCalls = append(s.fullCalls, accountID)
	return s.imported, s.err
}

func (s *stubImporter) IncrementalImport(_ context.Context, accountID int64) (int, error) {
	s.incrementalCalls = append(s.incrementalCalls, accountID)
	return s.imported, s.err
}

func (s *stubImporter) SyncAll(context.Context) (*appsync.Summary, error) {
	return s.summary, s.err
}

func (s *stubImporter) ReviewHistoricalStatus(context.Context, int64) ([]sales.StatusChange, error) {
	return s.changes, s.err
}

type stubReconciler struct {
	result     *reconcile.Result
	err        error
	accountID  int64
	window     reconcile.Window
	maxWorkers int
}

func (s *stubReconciler) Reconcile(_ context.Context, accountID int64, window reconcile.Window, maxWorkers int) (*reconcile.Result, error) {
	s.accountID = accountID
	s.window = window
	s.maxWorkers = maxWorkers
	return s.result, s.err
}

type stubDirectory struct {
	ids []int64
	err error
}

func (s *stubDirectory) AccountIDs(context.Context) ([]int64, error) {
	return s.ids, s.err
}

func newSyncRouter(importer ImportService, reconciler ReconcileService, accounts integration.AccountDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewSyncHandler(importer, reconciler, accounts, zap.NewNop())
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestSyncHandler_SyncAll(t *testing.T) {
	importer := &stubImporter{summary: &appsync.Summary{Accounts: 2, Imported: 31, Failed: 0}}
	engine := newSyncRouter(importer, &stubReconciler{}, &stubDirectory{})

	w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/sync/all", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 31, data["imported"])
	assert.EqualValues(t, 2, data["accounts"])
}

func TestSyncHandler_ListAccounts(t *testing.T) {
	engine := newSyncRouter(&stubImporter{}, &stubReconciler{}, &stubDirectory{ids: []int64{7, 8}})

	w, resp := doRequest(t, engine, http.MethodGet, "/api/v1/accounts", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Len(t, data["accounts"], 2)
}

func TestSyncHandler_FullImport(t *testing.T) {
	importer := &stubImporter{imported: 214}
	engine := newSyncRouter(importer, &stubReconciler{}, &stubDirectory{})

	w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/7/import/full", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{7}, importer.fullCalls)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 214, data["imported"])
	assert.EqualValues(t, 7, data["account_id"])
}

func TestSyncHandler_InvalidAccountID(t *testing.T) {
	engine := newSyncRouter(&stubImporter{}, &stubReconciler{}, &stubDirectory{})

	for _, path := range []string{
		"/api/v1/accounts/abc/import/full",
		"/api/v1/accounts/-3/import/incremental",
		"/api/v1/accounts/0/reconcile",
	} {
		w, resp := doRequest(t, engine, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		require.NotNil(t, resp.Error, path)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code, path)
	}
}

func TestSyncHandler_Reconcile(t *testing.T) {
	reconciler := &stubReconciler{result: &reconcile.Result{Scanned: 120, Updated: 4, FetchErrors: 1}}
	engine := newSyncRouter(&stubImporter{}, reconciler, &stubDirectory{})

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	body := map[string]any{"since": since.Format(time.RFC3339), "max_workers": 4}
	w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/9/reconcile", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9), reconciler.accountID)
	assert.True(t, reconciler.window.Since.Equal(since))
	assert.Equal(t, 4, reconciler.maxWorkers)

	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 120, data["scanned"])
	assert.EqualValues(t, 4, data["updated"])
	assert.EqualValues(t, 1, data["fetch_errors"])
}

func TestSyncHandler_ReconcileEmptyBodyUsesDefaults(t *testing.T) {
	reconciler := &stubReconciler{result: &reconcile.Result{}}
	engine := newSyncRouter(&stubImporter{}, reconciler, &stubDirectory{})

	w, _ := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/9/reconcile", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reconciler.window.Since.IsZero())
	assert.Nil(t, reconciler.window.Until)
	assert.Zero(t, reconciler.maxWorkers)
}

func TestSyncHandler_ReconcileRejectsInvertedWindow(t *testing.T) {
	engine := newSyncRouter(&stubImporter{}, &stubReconciler{}, &stubDirectory{})

	body := map[string]any{
		"since": "2026-08-20T00:00:00Z",
		"until": "2026-08-01T00:00:00Z",
	}
	w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/9/reconcile", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
}

func TestSyncHandler_ReviewStatus(t *testing.T) {
	importer := &stubImporter{changes: []sales.StatusChange{
		{OrderID: "551", OldStatus: "Pago", NewStatus: "Cancelado"},
	}}
	engine := newSyncRouter(importer, &stubReconciler{}, &stubDirectory{})

	w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/3/review-status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	changes := data["changes"].([]any)
	require.Len(t, changes, 1)
	first := changes[0].(map[string]any)
	assert.Equal(t, "551", first["order_id"])
	assert.Equal(t, "Cancelado", first["new_status"])
}

func TestSyncHandler_PlatformErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", integration.ErrPlatformUnauthorized, http.StatusBadGateway, dto.ErrCodeUpstreamUnauthorized},
		{"missing token", integration.ErrTokenNotFound, http.StatusBadGateway, dto.ErrCodeUpstreamUnauthorized},
		{"rate limited", integration.ErrPlatformRateLimited, http.StatusServiceUnavailable, dto.ErrCodeUpstreamRateLimited},
		{"unavailable", integration.ErrPlatformUnavailable, http.StatusBadGateway, dto.ErrCodeUpstreamUnavailable},
		{"bad response", integration.ErrPlatformInvalidResponse, http.StatusBadGateway, dto.ErrCodeUpstreamUnavailable},
		{"unexpected", assert.AnError, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &stubImporter{err: tt.err}
			engine := newSyncRouter(importer, &stubReconciler{}, &stubDirectory{})

			w, resp := doRequest(t, engine, http.MethodPost, "/api/v1/accounts/7/import/incremental", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
