package meli

import (
	"github.com/nexus/backend/internal/domain/integration"
)

// searchResponse is the wire shape of GET /orders/search
type searchResponse struct {
	Results []integration.OrderDocument `json:"results"`
	Paging  paging                      `json:"paging"`
}

// paging carries the platform's pagination envelope
type paging struct {
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

// apiError is the platform's error envelope, returned with non-2xx statuses
type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}
