package domain

import (
	"time"
)

// URLRecord represents a shortened URL with its metadata
type URLRecord struct {
	ID        int64     `json:"id"`
	ShortKey  string    `json:"short_key"`
	SecretKey string    `json:"secret_key,omitempty"`
	TargetURL string    `json:"target_url"`
	Active    bool      `json:"active"`
	Clicks    int64     `json:"clicks"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy that shares no memory with r
func (r *URLRecord) Clone() *URLRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CreateURLRequest represents the request to create a short URL
type CreateURLRequest struct {
	URL string `json:"url"`
}

// CreateURLResponse represents the response when creating a short URL
type CreateURLResponse struct {
	ShortKey  string    `json:"short_key"`
	SecretKey string    `json:"secret_key"`
	ShortURL  string    `json:"short_url"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

// DeleteURLsRequest represents a bulk delete by short key
type DeleteURLsRequest struct {
	Keys []string `json:"keys"`
}

// DeleteURLsResponse reports how many records a delete removed
type DeleteURLsResponse struct {
	Deleted int64 `json:"deleted"`
}
