// Package client talks to the remote production-tracking store over its
// JSON API. *Client satisfies conn.Connection and is the default transport
// behind conn.Remote.
package client

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/sgcache/internal/config"
)

// DefaultPageSize is the number of entities requested per read page.
const DefaultPageSize = 500

const (
	apiPath    = "/api3/json"
	uploadPath = "/upload/upload_file"
)

// Client is a JSON API client bound to one host and script credential.
type Client struct {
	baseURL    string
	scriptName string
	scriptKey  string
	httpClient *http.Client
	pageSize   int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The proxy setting is then the
// caller's responsibility.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New validates settings and returns a client for them. No request is made.
func New(settings config.Connection, opts ...Option) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.HTTPProxy != "" {
		proxy, err := url.Parse(settings.HTTPProxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	c := &Client{
		baseURL:    strings.TrimRight(settings.Host, "/"),
		scriptName: settings.APIScript,
		scriptKey:  settings.APIKey,
		httpClient: &http.Client{Transport: transport, Timeout: 5 * time.Minute},
		pageSize:   DefaultPageSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Close is a no-op for the HTTP client.
func (c *Client) Close() error { return nil }
