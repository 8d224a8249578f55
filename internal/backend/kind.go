package backend

import (
	"fmt"
	"slices"
)

// Kind identifies a backend variant.
type Kind string

// Backend kind constants. The set is closed: no other kind can be registered.
const (
	KindExternal        Kind = "external-node"
	KindEmbedded        Kind = "embedded-node"
	KindEmbeddedSockets Kind = "embedded-node-with-specialized-sockets"
	KindExternalVendor  Kind = "external-node-under-vendor-constraints"
)

var kinds = []Kind{KindExternal, KindEmbedded, KindEmbeddedSockets, KindExternalVendor}

// kindAliases maps the short tags found in older add-on settings to their
// canonical kind.
var kindAliases = map[string]Kind{
	"external":               KindExternal,
	"embedded":               KindEmbedded,
	"embedded:chromesockets": KindEmbeddedSockets,
	"external:brave":         KindExternalVendor,
}

var kindDescriptions = map[Kind]string{
	KindExternal:        "node running outside this process, reached over its HTTP API",
	KindEmbedded:        "in-process node serving its API on a loopback TCP listener",
	KindEmbeddedSockets: "in-process node serving its API over a unix or vsock socket",
	KindExternalVendor:  "external node managed by the host vendor on a fixed loopback address",
}

// Kinds returns the closed set of backend kinds.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// ParseKind validates a configuration tag against the closed set and returns
// its canonical kind. Legacy short tags are accepted as aliases.
func ParseKind(tag string) (Kind, error) {
	k := Kind(tag)
	if slices.Contains(kinds, k) {
		return k, nil
	}
	if k, ok := kindAliases[tag]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBackendKind, tag)
}

// Description returns a one-line description of the kind.
func (k Kind) Description() string {
	return kindDescriptions[k]
}
