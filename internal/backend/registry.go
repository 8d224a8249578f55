package backend

import (
	"fmt"
	"slices"
	"sort"
)

// BackendInfo describes a registered backend kind.
type BackendInfo struct {
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Registry maps backend kinds to their implementations. It is built once and
// never mutated afterwards, so lookups need no locking.
type Registry struct {
	backends map[Kind]Backend
}

// NewRegistry builds a registry from the given backends. Every key must be one
// of the closed set returned by Kinds.
func NewRegistry(backends map[Kind]Backend) (*Registry, error) {
	r := &Registry{backends: make(map[Kind]Backend, len(backends))}
	for k, b := range backends {
		if !slices.Contains(kinds, k) {
			return nil, fmt.Errorf("register backend: %w: %q", ErrUnsupportedBackendKind, k)
		}
		if b == nil {
			return nil, fmt.Errorf("register backend %q: nil backend", k)
		}
		r.backends[k] = b
	}
	return r, nil
}

// Resolve returns the backend registered for tag. It fails with
// ErrUnsupportedBackendKind for tags outside the closed set and for kinds
// this deployment did not register.
func (r *Registry) Resolve(tag string) (Backend, error) {
	k, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}
	b, ok := r.backends[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrUnsupportedBackendKind, tag)
	}
	return b, nil
}

// List returns the registered kinds sorted by name for a stable API response.
func (r *Registry) List() []BackendInfo {
	infos := make([]BackendInfo, 0, len(r.backends))
	for k := range r.backends {
		infos = append(infos, BackendInfo{Kind: k, Description: k.Description()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}
