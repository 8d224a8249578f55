package model

import "time"

// Transition is the direction of a node availability change.
type Transition string

// Transition constants.
const (
	TransitionAvailable   Transition = "became-available"
	TransitionUnavailable Transition = "became-unavailable"
)

// Transition result constants, recorded alongside each transition attempt.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Dependent is a registered consumer (typically a UI surface) that is told to
// reload when node availability changes.
type Dependent struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// TransitionRecord is one persisted lifecycle transition attempt.
type TransitionRecord struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Transition Transition `json:"transition"`
	Result     string     `json:"result"`
	Error      string     `json:"error,omitempty"`
	Endpoint   string     `json:"endpoint,omitempty"`
	DurationMS int        `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Failed reports whether the transition attempt ended in an error.
func (r *TransitionRecord) Failed() bool {
	return r.Result == ResultFailed
}
