package nodeapi

import "fmt"

// IDResponse is the body of /api/v0/id.
type IDResponse struct {
	ID           string   `json:"ID"`
	AgentVersion string   `json:"AgentVersion"`
	Addresses    []string `json:"Addresses"`
}

// VersionResponse is the body of /api/v0/version.
type VersionResponse struct {
	Version string `json:"Version"`
	Repo    string `json:"Repo"`
	System  string `json:"System"`
}

// BlockStat is the body of /api/v0/block/put.
type BlockStat struct {
	Key  string `json:"Key"`
	Size int    `json:"Size"`
}

// PinAddResponse is the body of /api/v0/pin/add.
type PinAddResponse struct {
	Pins []string `json:"Pins"`
}

// PinInfo describes one pin in a PinListResponse.
type PinInfo struct {
	Type string `json:"Type"`
}

// PinListResponse is the body of /api/v0/pin/ls.
type PinListResponse struct {
	Keys map[string]PinInfo `json:"Keys"`
}

// Error is the error body returned by the node API on non-2xx responses.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("node api error (status %d): %s", e.Status, e.Message)
}
