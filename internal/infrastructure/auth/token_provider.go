// Package auth serves platform bearer credentials to the sync and
// reconciliation services. Credentials live in the database; expired ones are
// exchanged through an injected refresher implementing the platform's OAuth
// flow.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/integration"
)

// expirySkew renews tokens slightly before their declared expiry so a request
// issued right at the boundary does not go out with a dead credential.
const expirySkew = 60 * time.Second

// TokenStore persists platform credentials per account.
type TokenStore interface {
	FindByAccountID(ctx context.Context, accountID int64) (*integration.Token, error)
	Save(ctx context.Context, token *integration.Token) error
}

// StoreTokenProvider implements TokenProvider on top of a credential store
// and a refresher.
type StoreTokenProvider struct {
	store     TokenStore
	refresher integration.TokenRefresher
	logger    *zap.Logger
	now       func() time.Time

	// Serializes refreshes so concurrent workers hitting a 401 do not burn
	// the same refresh token twice.
	mu sync.Mutex
}

// NewStoreTokenProvider creates a provider backed by the given store and refresher
func NewStoreTokenProvider(store TokenStore, refresher integration.TokenRefresher, logger *zap.Logger) *StoreTokenProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreTokenProvider{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidToken returns a usable bearer token for the account, refreshing first
// when the stored one has expired
func (p *StoreTokenProvider) ValidToken(ctx context.Context, accountID int64) (string, error) {
	token, err := p.store.FindByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if token.IsExpired(p.now().Add(expirySkew)) {
		return p.Refresh(ctx, accountID)
	}
	return token.AccessToken, nil
}

// Refresh forces a credential exchange and stores the result
func (p *StoreTokenProvider) Refresh(ctx context.Context, accountID int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.store.FindByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}

	fresh, err := p.refresher.RefreshToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: account %d: %v", integration.ErrTokenRefreshFailed, accountID, err)
	}
	fresh.AccountID = accountID

	if err := p.store.Save(ctx, fresh); err != nil {
		return "", fmt.Errorf("auth: store refreshed token: %w", err)
	}

	p.logger.Info("platform token refreshed",
		zap.Int64("account_id", accountID),
		zap.Time("expires_at", fresh.ExpiresAt))
	return fresh.AccessToken, nil
}

// Ensure StoreTokenProvider implements TokenProvider
var _ integration.TokenProvider = (*StoreTokenProvider)(nil)
