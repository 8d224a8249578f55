// Package node implements the in-process node used by the embedded backends.
// It keeps blocks and pins in a SQLite repo and serves the /api/v0 HTTP API
// on whatever listener the backend provides.
package node
