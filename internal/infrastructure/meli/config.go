package meli

import (
	"errors"
	"net/url"
	"time"
)

// Config holds the Mercado Libre API client configuration
type Config struct {
	// BaseURL is the API root, e.g. https://api.mercadolibre.com
	BaseURL string
	// Timeout is the per-request timeout
	Timeout time.Duration
	// MaxRetries is the total attempt budget per logical request
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff
	BackoffBase time.Duration
	// PoolMaxConns caps idle connections kept to the API host
	PoolMaxConns int
}

// Validation errors
var (
	ErrConfigMissingBaseURL = errors.New("meli: base URL is required")
	ErrConfigInvalidBaseURL = errors.New("meli: base URL is not a valid absolute URL")
)

// DefaultConfig returns the configuration matching the platform's published
// rate and timeout characteristics
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.mercadolibre.com",
		Timeout:      12 * time.Second,
		MaxRetries:   5,
		BackoffBase:  1500 * time.Millisecond,
		PoolMaxConns: 100,
	}
}

// Validate checks required fields and applies defaults to the rest
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrConfigInvalidBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 1500 * time.Millisecond
	}
	if c.PoolMaxConns <= 0 {
		c.PoolMaxConns = 100
	}
	return nil
}
