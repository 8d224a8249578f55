// Package vendornode implements the backend for a node that the host vendor runs
// and manages. The vendor pins the node API to a fixed loopback address, so
// any configured API URL is overridden.
package vendornode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/backend/external"
	"github.com/seantiz/nodekeeper/internal/nodeapi"
)

// APIURL is the vendor-mandated node API address.
const APIURL = "http://127.0.0.1:45001"

// ErrNodeUnavailable is returned when the vendor node does not answer, which
// usually means it is disabled in the host's settings.
var ErrNodeUnavailable = errors.New("vendor-managed node is not available")

// Backend attaches to the vendor-managed node.
type Backend struct {
	apiURL   string
	logger   *slog.Logger
	external *external.Backend
}

// Compile-time interface satisfaction check.
var _ backend.Backend = (*Backend)(nil)

// New creates a vendor backend.
func New(logger *slog.Logger, opts ...nodeapi.Option) *Backend {
	return &Backend{
		apiURL:   APIURL,
		logger:   logger,
		external: external.New(logger, opts...),
	}
}

// NewWithAPIURL creates a vendor backend bound to a non-standard address.
// Used when the vendor address is remapped, e.g. in tests.
func NewWithAPIURL(apiURL string, logger *slog.Logger, opts ...nodeapi.Option) *Backend {
	b := New(logger, opts...)
	b.apiURL = apiURL
	return b
}

// Init attaches to the vendor node, ignoring opts.APIURL.
func (b *Backend) Init(ctx context.Context, opts backend.Options) (backend.Instance, error) {
	if opts.APIURL != "" && opts.APIURL != b.apiURL {
		b.logger.Warn("ignoring configured api url for vendor-managed node",
			"configured", opts.APIURL,
			"enforced", b.apiURL,
		)
	}

	c, err := b.external.Attach(ctx, b.apiURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
	}
	return c, nil
}

// Destroy detaches from the vendor node. The vendor keeps it running.
func (b *Backend) Destroy(ctx context.Context) error {
	return b.external.Destroy(ctx)
}
