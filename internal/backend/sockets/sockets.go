// Package sockets implements the embedded-node-with-specialized-sockets
// backend: an in-process node whose API is served over a specialised socket transport instead of TCP.
// Supported transports are Unix domain sockets and AF_VSOCK.
package sockets

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/backend/embedded"
	"github.com/seantiz/nodekeeper/internal/nodeapi"
)

// Socket transport names accepted in Options.SocketTransport.
const (
	TransportUnix  = "unix"
	TransportVsock = "vsock"
)

const (
	// DefaultVsockPort is the vsock port used when Options.VsockPort is zero.
	DefaultVsockPort uint32 = 5001

	// defaultSocketName is created under os.TempDir when Options.SocketPath
	// is empty.
	defaultSocketName = "nodekeeper-api.sock"

	// clientHost is the placeholder host in request URLs; the dialer ignores it.
	clientHost = "http://nodekeeper.sock"
)

// Retry defaults for socket connection establishment.
const (
	dialMaxRetries  = 5
	dialBaseBackoff = 50 * time.Millisecond
)

// New creates an embedded backend serving its API over Transport.
func New(logger *slog.Logger) *embedded.Backend {
	return embedded.NewWithTransport(Transport{}, logger)
}

// Transport serves the node API over a unix or vsock socket.
type Transport struct{}

// Compile-time interface satisfaction check.
var _ embedded.Transport = Transport{}

// Name implements embedded.Transport.
func (Transport) Name() string { return "sockets" }

// Listen implements embedded.Transport.
func (Transport) Listen(opts backend.Options) (net.Listener, error) {
	switch transportOf(opts) {
	case TransportUnix:
		path := socketPath(opts)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		return net.Listen("unix", path)
	case TransportVsock:
		l, err := vsock.Listen(vsockPort(opts), nil)
		if err != nil {
			return nil, fmt.Errorf("vsock listen on port %d: %w", vsockPort(opts), err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported socket transport %q: must be %q or %q",
			opts.SocketTransport, TransportUnix, TransportVsock)
	}
}

// Client implements embedded.Transport.
func (Transport) Client(_ net.Listener, opts backend.Options) *nodeapi.Client {
	switch transportOf(opts) {
	case TransportVsock:
		port := vsockPort(opts)
		return nodeapi.New(clientHost,
			nodeapi.WithDialContext(func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialWithRetry(ctx, func() (net.Conn, error) {
					return vsock.Dial(vsock.Local, port, nil)
				})
			}),
			nodeapi.WithEndpoint(fmt.Sprintf("vsock://%d:%d", vsock.Local, port)),
		)
	default:
		path := socketPath(opts)
		return nodeapi.New(clientHost,
			nodeapi.WithDialContext(func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialWithRetry(ctx, func() (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", path)
				})
			}),
			nodeapi.WithEndpoint("unix://"+path),
		)
	}
}

func transportOf(opts backend.Options) string {
	if opts.SocketTransport == "" {
		return TransportUnix
	}
	return opts.SocketTransport
}

func socketPath(opts backend.Options) string {
	if opts.SocketPath != "" {
		return opts.SocketPath
	}
	return filepath.Join(os.TempDir(), defaultSocketName)
}

func vsockPort(opts backend.Options) uint32 {
	if opts.VsockPort != 0 {
		return opts.VsockPort
	}
	return DefaultVsockPort
}

// dialWithRetry calls dial until it succeeds, backing off exponentially
// between attempts.
func dialWithRetry(ctx context.Context, dial func() (net.Conn, error)) (net.Conn, error) {
	var lastErr error
	backoff := dialBaseBackoff

	for attempt := range dialMaxRetries {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial node socket: %w", ctx.Err())
		default:
		}

		conn, err := dial()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt < dialMaxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("dial node socket: %w", ctx.Err())
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("dial node socket after %d attempts: %w", dialMaxRetries, lastErr)
}
