package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Client represents an HTTP client for the URL shortener admin API
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new URL shortener client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateURL creates a short URL
func (c *Client) CreateURL(ctx context.Context, targetURL string) (*domain.CreateURLResponse, error) {
	var result domain.CreateURLResponse
	if err := c.do(ctx, http.MethodPost, "/api/urls", domain.CreateURLRequest{URL: targetURL}, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetURL retrieves information about a short URL
func (c *Client) GetURL(ctx context.Context, shortKey string) (*domain.URLRecord, error) {
	var record domain.URLRecord
	if err := c.do(ctx, http.MethodGet, "/api/urls/"+shortKey, nil, http.StatusOK, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListURLs retrieves all short URLs, newest first
func (c *Client) ListURLs(ctx context.Context) ([]*domain.URLRecord, error) {
	var records []*domain.URLRecord
	if err := c.do(ctx, http.MethodGet, "/api/urls", nil, http.StatusOK, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeactivateURL stops a short URL from resolving
func (c *Client) DeactivateURL(ctx context.Context, shortKey string) error {
	return c.do(ctx, http.MethodPost, "/api/urls/"+shortKey+"/deactivate", nil, http.StatusNoContent, nil)
}

// ReactivateURL lets a deactivated short URL resolve again
func (c *Client) ReactivateURL(ctx context.Context, shortKey string) error {
	return c.do(ctx, http.MethodPost, "/api/urls/"+shortKey+"/reactivate", nil, http.StatusNoContent, nil)
}

// DeleteURL deletes a short URL
func (c *Client) DeleteURL(ctx context.Context, shortKey string) error {
	return c.do(ctx, http.MethodDelete, "/api/urls/"+shortKey, nil, http.StatusNoContent, nil)
}

// DeleteURLs deletes several short URLs and reports how many existed
func (c *Client) DeleteURLs(ctx context.Context, shortKeys []string) (int64, error) {
	var result domain.DeleteURLsResponse
	if err := c.do(ctx, http.MethodPost, "/api/urls/delete", domain.DeleteURLsRequest{Keys: shortKeys}, http.StatusOK, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// PurgeInactive deletes every deactivated short URL
func (c *Client) PurgeInactive(ctx context.Context) (int64, error) {
	var result domain.DeleteURLsResponse
	if err := c.do(ctx, http.MethodDelete, "/api/urls/inactive", nil, http.StatusOK, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// do sends one API request. A 404 maps to domain.ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	}

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
