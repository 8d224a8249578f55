// Package supervisor owns the single active node slot. It serializes node
// startup and teardown, resolves backends through the registry and tells the
// notifier about every availability change.
//
// The slot is either empty or holds exactly one running backend instance.
// EnsureActive on an active slot returns the running instance without
// touching the backend; EnsureInactive always leaves the slot empty, even
// when the backend fails to shut down cleanly.
//
// The availability notification is dispatched after the slot is committed
// and is not awaited, so dependents are updated eventually rather than by the
// time EnsureActive returns.
package supervisor
