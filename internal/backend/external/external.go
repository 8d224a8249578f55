// Package external implements the backend that attaches to a node running
// outside this process. Destroy only drops the API handle; the node itself
// keeps running.
package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/nodeapi"
)

// DefaultAPIURL is used when Options.APIURL is empty.
const DefaultAPIURL = "http://127.0.0.1:5001"

// Backend attaches to an external node over its HTTP API.
type Backend struct {
	logger  *slog.Logger
	options []nodeapi.Option

	mu     sync.Mutex
	client *nodeapi.Client
}

// Compile-time interface satisfaction check.
var _ backend.Backend = (*Backend)(nil)

// New creates an external backend. Client options are applied to every API
// client it creates.
func New(logger *slog.Logger, opts ...nodeapi.Option) *Backend {
	return &Backend{logger: logger, options: opts}
}

// Init connects to the node at opts.APIURL and verifies it answers.
func (b *Backend) Init(ctx context.Context, opts backend.Options) (backend.Instance, error) {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return b.Attach(ctx, apiURL)
}

// Attach connects to the node at apiURL, probing its identity before handing
// out the client.
func (b *Backend) Attach(ctx context.Context, apiURL string) (*nodeapi.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil, errors.New("already attached to " + b.client.Endpoint())
	}

	c := nodeapi.New(apiURL, b.options...)
	id, err := c.ID(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe node api at %s: %w", apiURL, err)
	}

	b.logger.Info("attached to external node", "api_url", apiURL, "peer_id", id.ID, "agent", id.AgentVersion)
	b.client = c
	return c, nil
}

// Destroy releases the API client. The external node is left running.
func (b *Backend) Destroy(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	b.logger.Info("detached from external node", "api_url", b.client.Endpoint())
	b.client = nil
	return nil
}
