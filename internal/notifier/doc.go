// Package notifier tells dependents about node availability changes.
//
// On every transition, dependents whose URL identifies the bundled management
// UI are reloaded, since their ability to reach the node has changed. When a
// node becomes available, a cache warm is additionally scheduled after a
// fixed delay so the node can settle before being asked to do work.
//
// Everything here is fire-and-forget: enumeration, reload and warm failures
// are logged and counted, never returned.
package notifier
