package backend

import "context"

// Backend is one strategy for starting and stopping the local node. A backend
// owns at most one running node; the supervisor guarantees Init and Destroy
// are never called concurrently or out of order.
type Backend interface {
	// Init starts (or connects to) a node and returns a handle to its API.
	// It may block for as long as node startup takes.
	Init(ctx context.Context, opts Options) (Instance, error)

	// Destroy stops (or disconnects from) the node started by Init.
	Destroy(ctx context.Context) error
}

// Instance is the live handle to a running node's API, returned by Init.
type Instance interface {
	// Endpoint is a human-readable address of the node API.
	Endpoint() string

	// PeerID returns the identity of the node behind the API.
	PeerID(ctx context.Context) (string, error)

	// BlockPut stores a raw block and returns its key.
	BlockPut(ctx context.Context, data []byte) (string, error)

	// PinAdd pins a stored block so it survives repo garbage collection.
	PinAdd(ctx context.Context, key string) error
}

// Options carries the configuration a backend needs to start a node.
type Options struct {
	Kind Kind `json:"kind"`

	// APIURL is the HTTP API address of an externally running node.
	APIURL string `json:"api_url,omitempty"`

	// RepoPath is the on-disk repo of an embedded node. Empty means in-memory.
	RepoPath string `json:"repo_path,omitempty"`

	// SocketTransport selects the listener of the
	// embedded-node-with-specialized-sockets backend ("unix" or "vsock").
	SocketTransport string `json:"socket_transport,omitempty"`

	// SocketPath is the Unix socket path for the "unix" socket transport.
	SocketPath string `json:"socket_path,omitempty"`

	// VsockPort is the AF_VSOCK port for the "vsock" socket transport.
	VsockPort uint32 `json:"vsock_port,omitempty"`
}
