package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus/backend/internal/domain/integration"
)

// staticTokens is a TokenProvider with a fixed token and a counting refresh
type staticTokens struct {
	token        string
	refreshed    string
	refreshErr   error
	refreshCalls int32
}

func (s *staticTokens) ValidToken(context.Context, int64) (string, error) {
	return s.token, nil
}

func (s *staticTokens) Refresh(context.Context, int64) (string, error) {
	atomic.AddInt32(&s.refreshCalls, 1)
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	return s.refreshed, nil
}

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:      baseURL,
		Timeout:      2 * time.Second,
		MaxRetries:   3,
		BackoffBase:  time.Millisecond,
		PoolMaxConns: 4,
	}
}

func newTestClient(t *testing.T, server *httptest.Server, tokens integration.TokenProvider) *Client {
	t.Helper()
	client, err := NewClient(testConfig(server.URL), tokens, nil)
	require.NoError(t, err)
	return client
}

func searchReq(accountID int64) *integration.OrderSearchRequest {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	return &integration.OrderSearchRequest{
		AccountID: accountID,
		Offset:    50,
		Limit:     50,
		Sort:      integration.SortDateAsc,
		DateFrom:  &from,
		DateTo:    &to,
	}
}

func TestClient_SearchOrders(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"id": 2000001, "status": "paid", "date_closed": "2026-01-10T12:00:00.000-03:00", "total_amount": 150.5},
				{"id": "2000002", "status": "cancelled", "date_closed": "2026-01-11T09:30:00.000-03:00"}
			],
			"paging": {"total": 102, "offset": 50, "limit": 50}
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok-1"})
	page, err := client.SearchOrders(context.Background(), searchReq(7))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "7", gotQuery["seller"])
	assert.Equal(t, "50", gotQuery["offset"])
	assert.Equal(t, "50", gotQuery["limit"])
	assert.Equal(t, "date_asc", gotQuery["sort"])
	assert.Equal(t, "2026-01-01T00:00:00Z", gotQuery["order.date_closed.from"])
	assert.Equal(t, "2026-01-31T23:59:59Z", gotQuery["order.date_closed.to"])

	assert.Equal(t, int64(102), page.Total)
	assert.Equal(t, 50, page.Offset)
	assert.Equal(t, 50, page.Limit)
	require.Len(t, page.Results, 2)
	// Numeric and quoted ids both decode
	assert.Equal(t, integration.FlexID("2000001"), page.Results[0].ID)
	assert.Equal(t, integration.FlexID("2000002"), page.Results[1].ID)
	assert.True(t, page.IsShort() == false)
}

func TestClient_SearchOrders_InvalidRequest(t *testing.T) {
	client, err := NewClient(testConfig("http://localhost:0"), &staticTokens{token: "t"}, nil)
	require.NoError(t, err)

	_, err = client.SearchOrders(context.Background(), &integration.OrderSearchRequest{AccountID: 0})
	assert.ErrorIs(t, err, integration.ErrSearchInvalidAccount)
}

func TestClient_GetOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/2000001", r.URL.Path)
		w.Write([]byte(`{"id": 2000001, "status": "paid", "date_closed": "2026-01-10T12:00:00.000-03:00"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	doc, err := client.GetOrder(context.Background(), 7, "2000001")
	require.NoError(t, err)
	assert.Equal(t, integration.FlexID("2000001"), doc.ID)
	assert.Equal(t, "paid", doc.Status)
}

func TestClient_GetOrder_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	_, err := client.GetOrder(context.Background(), 7, "missing")
	assert.ErrorIs(t, err, integration.ErrOrderNotFound)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id": 1, "status": "paid"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	doc, err := client.GetOrder(context.Background(), 7, "1")
	require.NoError(t, err)
	assert.Equal(t, integration.FlexID("1"), doc.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_HonorsRetryAfterHeader(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id": 1, "status": "paid"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	_, err := client.GetOrder(context.Background(), 7, "1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_RateLimitExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	_, err := client.GetOrder(context.Background(), 7, "1")
	assert.ErrorIs(t, err, integration.ErrPlatformRateLimited)
}

func TestClient_RefreshesCredentialOn401Once(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 1, "status": "paid"}`))
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale", refreshed: "fresh"}
	client := newTestClient(t, server, tokens)

	doc, err := client.GetOrder(context.Background(), 7, "1")
	require.NoError(t, err)
	assert.Equal(t, integration.FlexID("1"), doc.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens.refreshCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_SecondUnauthorizedIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale", refreshed: "still-bad"}
	client := newTestClient(t, server, tokens)

	_, err := client.GetOrder(context.Background(), 7, "1")
	assert.ErrorIs(t, err, integration.ErrPlatformUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens.refreshCalls))
}

func TestClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	_, err := client.GetOrder(context.Background(), 7, "1")
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid date range", "error": "bad_request", "status": 400}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, &staticTokens{token: "tok"})
	_, err := client.GetOrder(context.Background(), 7, "1")
	require.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
	assert.Contains(t, err.Error(), "invalid date range")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
