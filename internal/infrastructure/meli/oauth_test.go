package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus/backend/internal/domain/integration"
)

func newTestRefresher(t *testing.T, server *httptest.Server) *OAuthRefresher {
	t.Helper()
	r, err := NewOAuthRefresher(testConfig(server.URL), "app-id", "app-secret", nil)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestOAuthRefresher_RefreshToken(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"refresh_token": r.PostForm.Get("refresh_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "APP_USR-new",
			"token_type": "Bearer",
			"expires_in": 21600,
			"refresh_token": "TG-rotated",
			"user_id": 77
		}`))
	}))
	defer server.Close()

	refresher := newTestRefresher(t, server)
	stale := &integration.Token{AccountID: 77, AccessToken: "APP_USR-old", RefreshToken: "TG-old"}

	fresh, err := refresher.RefreshToken(context.Background(), stale)
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "app-id", gotForm["client_id"])
	assert.Equal(t, "app-secret", gotForm["client_secret"])
	assert.Equal(t, "TG-old", gotForm["refresh_token"])

	assert.Equal(t, int64(77), fresh.AccountID)
	assert.Equal(t, "APP_USR-new", fresh.AccessToken)
	assert.Equal(t, "TG-rotated", fresh.RefreshToken)
	assert.Equal(t, time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC), fresh.ExpiresAt)
}

func TestOAuthRefresher_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"access_token": "APP_USR-new", "expires_in": 3600}`))
	}))
	defer server.Close()

	refresher := newTestRefresher(t, server)
	fresh, err := refresher.RefreshToken(context.Background(), &integration.Token{AccountID: 1, RefreshToken: "TG-keep"})
	require.NoError(t, err)
	assert.Equal(t, "TG-keep", fresh.RefreshToken)
}

func TestOAuthRefresher_RejectedCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid_grant", "error": "invalid_grant", "status": 400}`))
	}))
	defer server.Close()

	refresher := newTestRefresher(t, server)
	_, err := refresher.RefreshToken(context.Background(), &integration.Token{AccountID: 1, RefreshToken: "TG-revoked"})
	require.ErrorIs(t, err, integration.ErrTokenRefreshFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestOAuthRefresher_MissingRefreshToken(t *testing.T) {
	refresher, err := NewOAuthRefresher(testConfig("https://api.mercadolibre.com"), "id", "secret", nil)
	require.NoError(t, err)

	_, err = refresher.RefreshToken(context.Background(), &integration.Token{AccountID: 1})
	assert.ErrorIs(t, err, integration.ErrTokenRefreshFailed)
}
