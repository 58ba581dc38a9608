package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/integration"
)

// tokenResponse is the OAuth token endpoint wire shape
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
}

// OAuthRefresher exchanges refresh tokens against the platform's OAuth
// endpoint. It implements integration.TokenRefresher.
type OAuthRefresher struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time
}

// NewOAuthRefresher creates a refresher using the given application credentials
func NewOAuthRefresher(config *Config, clientID, clientSecret string, logger *zap.Logger) (*OAuthRefresher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthRefresher{
		baseURL:      config.BaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: config.Timeout},
		logger:       logger,
		now:          time.Now,
	}, nil
}

// RefreshToken exchanges the stored refresh token for a new credential pair
func (r *OAuthRefresher) RefreshToken(ctx context.Context, t *integration.Token) (*integration.Token, error) {
	if t == nil || t.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token on record", integration.ErrTokenRefreshFailed)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)
	form.Set("refresh_token", t.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/oauth/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrTokenRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrTokenRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", integration.ErrTokenRefreshFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("Token refresh rejected",
			zap.Int64("account_id", t.AccountID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d: %s", integration.ErrTokenRefreshFailed, resp.StatusCode, apiErrorMessage(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrTokenRefreshFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", integration.ErrTokenRefreshFailed)
	}

	refreshed := &integration.Token{
		AccountID:    t.AccountID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    r.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	// The endpoint may omit a rotated refresh token; keep the old one then
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = t.RefreshToken
	}
	return refreshed, nil
}

var _ integration.TokenRefresher = (*OAuthRefresher)(nil)
