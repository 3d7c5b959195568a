package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Commands provides command-line operations for the client
type Commands struct {
	client *Client
	out    io.Writer
}

// NewCommands creates a new Commands instance writing to out
func NewCommands(client *Client, out io.Writer) *Commands {
	return &Commands{
		client: client,
		out:    out,
	}
}

// Create creates a short URL and displays the result
func (c *Commands) Create(ctx context.Context, targetURL string) error {
	result, err := c.client.CreateURL(ctx, targetURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Short URL created:\n")
	fmt.Fprintf(c.out, "Short Key: %s\n", result.ShortKey)
	fmt.Fprintf(c.out, "Secret Key: %s\n", result.SecretKey)
	fmt.Fprintf(c.out, "Short URL: %s\n", result.ShortURL)
	fmt.Fprintf(c.out, "Target URL: %s\n", result.TargetURL)
	fmt.Fprintf(c.out, "Created At: %s\n", result.CreatedAt.Format(time.RFC3339))

	return nil
}

// Get retrieves and displays information about a short URL
func (c *Commands) Get(ctx context.Context, shortKey string) error {
	record, err := c.client.GetURL(ctx, shortKey)
	if err != nil {
		return c.notFoundOr(shortKey, err)
	}

	fmt.Fprintf(c.out, "URL Information:\n")
	fmt.Fprintf(c.out, "Short Key: %s\n", record.ShortKey)
	fmt.Fprintf(c.out, "Target URL: %s\n", record.TargetURL)
	fmt.Fprintf(c.out, "Active: %t\n", record.Active)
	fmt.Fprintf(c.out, "Created At: %s\n", record.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "Clicks: %d\n", record.Clicks)

	return nil
}

// Deactivate stops a short URL from resolving
func (c *Commands) Deactivate(ctx context.Context, shortKey string) error {
	if err := c.client.DeactivateURL(ctx, shortKey); err != nil {
		return c.notFoundOr(shortKey, err)
	}

	fmt.Fprintf(c.out, "Short URL '%s' deactivated\n", shortKey)
	return nil
}

// Reactivate lets a short URL resolve again
func (c *Commands) Reactivate(ctx context.Context, shortKey string) error {
	if err := c.client.ReactivateURL(ctx, shortKey); err != nil {
		return c.notFoundOr(shortKey, err)
	}

	fmt.Fprintf(c.out, "Short URL '%s' reactivated\n", shortKey)
	return nil
}

// Delete removes one or more short URLs
func (c *Commands) Delete(ctx context.Context, shortKeys ...string) error {
	if len(shortKeys) == 1 {
		if err := c.client.DeleteURL(ctx, shortKeys[0]); err != nil {
			return c.notFoundOr(shortKeys[0], err)
		}
		fmt.Fprintf(c.out, "Short URL '%s' deleted successfully\n", shortKeys[0])
		return nil
	}

	deleted, err := c.client.DeleteURLs(ctx, shortKeys)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Deleted %d of %d short URLs\n", deleted, len(shortKeys))
	return nil
}

// PurgeInactive removes every deactivated short URL
func (c *Commands) PurgeInactive(ctx context.Context) error {
	deleted, err := c.client.PurgeInactive(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Deleted %d inactive short URLs\n", deleted)
	return nil
}

// List displays all short URLs in a table format
func (c *Commands) List(ctx context.Context) error {
	records, err := c.client.ListURLs(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(c.out, "No URLs found")
		return nil
	}

	fmt.Fprintf(c.out, "%-10s %-50s %-8s %-20s %s\n", "Short Key", "Target URL", "Active", "Created At", "Clicks")
	fmt.Fprintln(c.out, strings.Repeat("-", 100))

	for _, record := range records {
		targetURL := record.TargetURL
		if len(targetURL) > 50 {
			targetURL = targetURL[:47] + "..."
		}

		fmt.Fprintf(c.out, "%-10s %-50s %-8t %-20s %d\n",
			record.ShortKey,
			targetURL,
			record.Active,
			record.CreatedAt.Format("2006-01-02 15:04:05"),
			record.Clicks,
		)
	}

	return nil
}

func (c *Commands) notFoundOr(shortKey string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintf(c.out, "Short key '%s' not found\n", shortKey)
		return nil
	}
	return err
}
