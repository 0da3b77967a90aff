// Package marketplace is a client for the plugin marketplace's install API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imamik/stagehand/internal/util/retry"
)

// InstallResult tells a fresh install apart from one that was already present.
type InstallResult int

const (
	Installed InstallResult = iota
	AlreadyInstalled
)

func (r InstallResult) String() string {
	if r == AlreadyInstalled {
		return "already-installed"
	}
	return "installed"
}

// Client installs plugins for tenants through the marketplace HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a marketplace client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type installRequest struct {
	PluginID string `json:"plugin_id"`
}

// Install requests installation of pluginID for tenantID.
//
// A 409 response means the plugin is already installed and is reported as
// AlreadyInstalled. Other 4xx responses are permanent and returned marked
// with retry.Fatal; 5xx responses and transport errors are returned as is so
// callers can retry them.
func (c *Client) Install(ctx context.Context, tenantID, pluginID string) (InstallResult, error) {
	body, err := json.Marshal(installRequest{PluginID: pluginID})
	if err != nil {
		return 0, retry.Fatal(fmt.Errorf("encode install request: %w", err))
	}

	u := fmt.Sprintf("%s/api/v1/tenants/%s/plugins/install", c.baseURL, url.PathEscape(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, retry.Fatal(fmt.Errorf("create install request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("install %s for tenant %s: %w", pluginID, tenantID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Installed, nil
	case resp.StatusCode == http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return AlreadyInstalled, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = &StatusError{Code: resp.StatusCode, PluginID: pluginID, TenantID: tenantID, Body: strings.TrimSpace(string(msg))}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return 0, err
	}
	return 0, retry.Fatal(err)
}

// StatusError is an unexpected marketplace response.
type StatusError struct {
	Code     int
	PluginID string
	TenantID string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace returned %d installing %s for tenant %s: %s", e.Code, e.PluginID, e.TenantID, e.Body)
}
