// Package submit posts cycle rows to a remote metrics API.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcourtman/pulse-disk-collector/internal/models"
)

// Endpoint is appended to the configured API base URL.
const Endpoint = "submit-metrics"

const maxErrorBody = 512

// Client sends rows as flat JSON objects.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
}

// NewClient returns a client for apiURL. A base without a trailing slash
// gets one before the endpoint is appended.
func NewClient(apiURL, version string, timeout time.Duration) (*Client, error) {
	apiURL = strings.TrimSpace(apiURL)
	if apiURL == "" {
		return nil, fmt.Errorf("api url is empty")
	}
	if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return nil, fmt.Errorf("api url %q must start with http:// or https://", apiURL)
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        apiURL + Endpoint,
		userAgent:  "pulse-disk-collector/" + version,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// URL is the full submission endpoint.
func (c *Client) URL() string { return c.url }

// Send posts row. Missing values are sent as null.
func (c *Client) Send(ctx context.Context, row models.CycleRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("server responded with status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
