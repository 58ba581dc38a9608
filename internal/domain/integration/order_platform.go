package integration

import (
	"context"
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// OrderPlatform Errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrPlatformUnauthorized    = errors.New("integration: platform rejected credentials")

	// Order errors
	ErrOrderNotFound = errors.New("integration: platform order not found")

	// Credential errors
	ErrTokenNotFound      = errors.New("integration: no stored token for account")
	ErrTokenRefreshFailed = errors.New("integration: token refresh failed")

	// Request validation errors
	ErrSearchInvalidAccount = errors.New("integration: invalid account id")
	ErrSearchInvalidWindow  = errors.New("integration: search window start must precede end")
)

// ---------------------------------------------------------------------------
// Search Sort Order
// ---------------------------------------------------------------------------

// SortOrder controls the ordering of search results by closing date.
type SortOrder string

const (
	// SortDateAsc returns oldest orders first
	SortDateAsc SortOrder = "date_asc"
	// SortDateDesc returns newest orders first
	SortDateDesc SortOrder = "date_desc"
)

// IsValid returns true if the sort order is valid
func (s SortOrder) IsValid() bool {
	return s == SortDateAsc || s == SortDateDesc
}

// String returns the string representation of SortOrder
func (s SortOrder) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// DefaultPageSize is the page size used for order search requests.
const DefaultPageSize = 50

// OrderSearchRequest represents one page of a paginated order search.
type OrderSearchRequest struct {
	// AccountID is the seller account the search is scoped to
	AccountID int64
	// Offset is the zero-based result offset
	Offset int
	// Limit is the page size
	Limit int
	// Sort controls result ordering by closing date
	Sort SortOrder
	// DateFrom is the inclusive lower bound on date_closed (optional)
	DateFrom *time.Time
	// DateTo is the inclusive upper bound on date_closed (optional)
	DateTo *time.Time
	// Status filters by raw order status (optional)
	Status string
}

// Validate validates the search request and applies paging defaults.
func (r *OrderSearchRequest) Validate() error {
	if r.AccountID <= 0 {
		return ErrSearchInvalidAccount
	}
	if r.DateFrom != nil && r.DateTo != nil && r.DateFrom.After(*r.DateTo) {
		return ErrSearchInvalidWindow
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.Limit < 1 || r.Limit > 100 {
		r.Limit = DefaultPageSize
	}
	if !r.Sort.IsValid() {
		r.Sort = SortDateAsc
	}
	return nil
}

// OrderSearchPage represents one page of search results.
type OrderSearchPage struct {
	// Results contains the raw order documents in this page
	Results []OrderDocument
	// Total is the total number of orders matching the filter
	Total int64
	// Offset echoes the request offset
	Offset int
	// Limit echoes the effective page size
	Limit int
}

// IsShort returns true if this page signals exhaustion of the result set.
func (p *OrderSearchPage) IsShort() bool {
	return len(p.Results) < p.Limit
}

// ---------------------------------------------------------------------------
// OrderPlatform Port Interface
// ---------------------------------------------------------------------------

// OrderPlatform defines the port interface for the remote order-management
// API. The concrete HTTP adapter lives in the infrastructure layer.
type OrderPlatform interface {
	// SearchOrders fetches one page of orders matching the request filter
	SearchOrders(ctx context.Context, req *OrderSearchRequest) (*OrderSearchPage, error)

	// GetOrder fetches the full order document for a single order id
	GetOrder(ctx context.Context, accountID int64, orderID string) (*OrderDocument, error)
}

// ---------------------------------------------------------------------------
// Credential Ports
// ---------------------------------------------------------------------------

// Token is a bearer credential for one seller account.
type Token struct {
	AccountID    int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IsExpired returns true if the token has passed its expiry.
func (t *Token) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TokenProvider yields a currently valid bearer token for an account,
// transparently refreshing an expired one.
type TokenProvider interface {
	// ValidToken returns a usable bearer token for the account
	ValidToken(ctx context.Context, accountID int64) (string, error)

	// Refresh forces a credential refresh and returns the new bearer token.
	// Callers invoke this once after an authorization failure before giving up.
	Refresh(ctx context.Context, accountID int64) (string, error)
}

// TokenRefresher exchanges a refresh token for a fresh credential. The OAuth
// protocol itself is an external collaborator; implementations are injected.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, t *Token) (*Token, error)
}

// AccountDirectory lists the seller accounts registered for synchronization.
type AccountDirectory interface {
	// AccountIDs returns every account with stored credentials
	AccountIDs(ctx context.Context) ([]int64, error)
}
