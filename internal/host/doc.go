// Package host is the environment the supervisor runs in: it enumerates the
// registered dependents from the store and delivers reload requests to them
// over an in-process event broker.
package host
