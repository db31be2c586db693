// Package directory looks up plugin descriptors from the upstream info
// endpoint. The lookup is an existence check plus a display name; it is
// deliberately not routed through the proxy chain because the info API
// allows direct access.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plugwatch/plugwatch/internal/review"
)

const maxDescriptorBytes = 1 << 20

// Config controls the directory client.
type Config struct {
	// BaseURL is the info endpoint root, e.g.
	// https://api.wordpress.org/plugins/info/1.0
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches plugin descriptors.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type descriptor struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// LookupName returns the display name for a slug. Any non-success
// outcome, including network failure and an error-shaped body, maps to
// review.ErrNotFound: the slug "does not exist" as far as callers care.
func (c *Client) LookupName(ctx context.Context, slug string) (string, error) {
	url := fmt.Sprintf("%s/%s.json", c.cfg.BaseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("plugin %s: %w: %v", slug, review.ErrNotFound, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("plugin %s: status %d: %w", slug, resp.StatusCode, review.ErrNotFound)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptorBytes))
	if err != nil {
		return "", fmt.Errorf("read descriptor: %w", err)
	}

	var desc descriptor
	if err := json.Unmarshal(body, &desc); err != nil || desc.Error != "" || desc.Name == "" {
		return "", fmt.Errorf("plugin %s: no descriptor: %w", slug, review.ErrNotFound)
	}
	return desc.Name, nil
}
