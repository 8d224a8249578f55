// Package nodeapi is a client for the node HTTP API (/api/v0). Every backend
// hands out a *Client as its instance handle, whatever transport it uses.
package nodeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiPrefix = "/api/v0"

	// defaultRequestTimeout bounds a single API call when the caller's
	// context has no deadline.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 16 << 20 // 16 MB
)

// Client talks to a node over its HTTP API.
type Client struct {
	baseURL  string
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialContext routes every request through dial, regardless of the host in
// the base URL. Used for unix and vsock transports.
func WithDialContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) {
		c.http = &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: &http.Transport{DialContext: dial},
		}
	}
}

// WithEndpoint overrides the address reported by Endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// New creates a client for the node API rooted at baseURL
// (e.g. "http://127.0.0.1:5001").
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL:  base,
		endpoint: base,
		http:     &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the address of the node API.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ID returns the node identity.
func (c *Client) ID(ctx context.Context) (*IDResponse, error) {
	var resp IDResponse
	if err := c.call(ctx, "/id", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PeerID returns the node's peer ID.
func (c *Client) PeerID(ctx context.Context) (string, error) {
	id, err := c.ID(ctx)
	if err != nil {
		return "", err
	}
	return id.ID, nil
}

// Version returns the node software version.
func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var resp VersionResponse
	if err := c.call(ctx, "/version", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlockPut stores data as a raw block and returns its key.
func (c *Client) BlockPut(ctx context.Context, data []byte) (string, error) {
	var resp BlockStat
	if err := c.call(ctx, "/block/put", nil, data, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

// BlockGet returns the raw block stored under key.
func (c *Client) BlockGet(ctx context.Context, key string) ([]byte, error) {
	body, err := c.do(ctx, "/block/get", url.Values{"arg": {key}}, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// PinAdd pins the block stored under key.
func (c *Client) PinAdd(ctx context.Context, key string) error {
	var resp PinAddResponse
	return c.call(ctx, "/pin/add", url.Values{"arg": {key}}, nil, &resp)
}

// PinList returns the keys of all pinned blocks.
func (c *Client) PinList(ctx context.Context) ([]string, error) {
	var resp PinListResponse
	if err := c.call(ctx, "/pin/ls", nil, nil, &resp); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Keys))
	for k := range resp.Keys {
		keys = append(keys, k)
	}
	return keys, nil
}

// call performs a request and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, path string, args url.Values, body []byte, out any) error {
	raw, err := c.do(ctx, path, args, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do POSTs to the API, as the node API requires for every command, and
// returns the response body of a successful call.
func (c *Client) do(ctx context.Context, path string, args url.Values, body []byte) ([]byte, error) {
	u := c.baseURL + apiPrefix + path
	if len(args) > 0 {
		u += "?" + args.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("call %s: %w", path, apiErr)
	}
	return raw, nil
}
