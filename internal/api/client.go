package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Authorizer adds authorization to an outgoing request.
type Authorizer interface {
	WithAuthorization(ctx context.Context, req *http.Request) error
}

// Client talks to the platform releases API.
type Client struct {
	releasesURL string
	httpClient  *http.Client
	auth        Authorizer
	userAgent   string
}

// NewClient creates a releases client. releasesURL is a template whose
// single %s is replaced by the customer id.
func NewClient(releasesURL string, httpClient *http.Client, auth Authorizer, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		releasesURL: releasesURL,
		httpClient:  httpClient,
		auth:        auth,
		userAgent:   userAgent,
	}
}

// Release describes one service deployment known to the releases API.
type Release struct {
	Service string `json:"Service"`
	Region  string `json:"Region"`
	Release string `json:"Release"`
	Fqdn    string `json:"Fqdn"`
}

// ListReleases returns every service deployment visible to customerID.
func (c *Client) ListReleases(ctx context.Context, customerID string) ([]Release, error) {
	url := c.releasesURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, customerID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.auth != nil {
		if err := c.auth.WithAuthorization(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failure from %s: status %d", url, resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return releases, nil
}
