// Package embedded implements the backend that runs a node inside this
// process. The listener the node API is served on is chosen by a Transport;
// the default is loopback TCP.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/node"
	"github.com/seantiz/nodekeeper/internal/nodeapi"
)

// Transport provides the listener the node API is served on and a client
// able to reach it.
type Transport interface {
	Name() string
	Listen(opts backend.Options) (net.Listener, error)
	Client(l net.Listener, opts backend.Options) *nodeapi.Client
}

// TCP serves the node API on an ephemeral loopback TCP port.
type TCP struct{}

// Name implements Transport.
func (TCP) Name() string { return "tcp" }

// Listen implements Transport.
func (TCP) Listen(_ backend.Options) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

// Client implements Transport.
func (TCP) Client(l net.Listener, _ backend.Options) *nodeapi.Client {
	return nodeapi.New("http://" + l.Addr().String())
}

// Backend runs an in-process node.
type Backend struct {
	transport Transport
	logger    *slog.Logger

	mu   sync.Mutex
	node *node.Node
}

// Compile-time interface satisfaction check.
var _ backend.Backend = (*Backend)(nil)

// New creates an embedded backend serving over loopback TCP.
func New(logger *slog.Logger) *Backend {
	return NewWithTransport(TCP{}, logger)
}

// NewWithTransport creates an embedded backend serving over t.
func NewWithTransport(t Transport, logger *slog.Logger) *Backend {
	return &Backend{
		transport: t,
		logger:    logger.With("transport", t.Name()),
	}
}

// Init opens the repo at opts.RepoPath, starts serving the node API and waits
// until the API answers.
func (b *Backend) Init(ctx context.Context, opts backend.Options) (backend.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.node != nil {
		return nil, errors.New("embedded node already running")
	}

	start := time.Now()

	n, err := node.Open(opts.RepoPath, b.logger)
	if err != nil {
		return nil, fmt.Errorf("open node: %w", err)
	}

	l, err := b.transport.Listen(opts)
	if err != nil {
		b.abort(ctx, n, "listen")
		return nil, fmt.Errorf("listen on %s transport: %w", b.transport.Name(), err)
	}

	if err := n.Start(l); err != nil {
		l.Close()
		b.abort(ctx, n, "start")
		return nil, fmt.Errorf("start node: %w", err)
	}

	c := b.transport.Client(l, opts)
	if _, err := c.ID(ctx); err != nil {
		b.abort(ctx, n, "readiness probe")
		return nil, fmt.Errorf("node api not ready: %w", err)
	}

	nodeBootDuration.WithLabelValues(b.transport.Name()).Observe(time.Since(start).Seconds())
	runningNodes.Inc()

	b.logger.Info("embedded node started",
		"peer_id", n.PeerID(),
		"endpoint", c.Endpoint(),
		"repo_path", opts.RepoPath,
	)
	b.node = n
	return c, nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// abort stops a node whose Init failed at stage. The Init error is returned to
// the caller; a shutdown error is only logged.
func (b *Backend) abort(ctx context.Context, n shutdowner, stage string) {
	if err := n.Shutdown(ctx); err != nil {
		b.logger.Error("shutdown node after failed init", "stage", stage, "error", err)
	}
}

// Destroy stops serving the node API and closes the repo.
func (b *Backend) Destroy(ctx context.Context) error {
	b.mu.Lock()
	n := b.node
	b.node = nil
	b.mu.Unlock()

	if n == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		nodeShutdownDuration.WithLabelValues(b.transport.Name()).Observe(time.Since(start).Seconds())
		runningNodes.Dec()
	}()

	if err := n.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown embedded node: %w", err)
	}
	return nil
}
