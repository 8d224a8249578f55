// Package backend defines the contract every node backend implements, the
// closed set of backend kinds a deployment may select, and the registry that
// resolves a configured kind to its implementation.
package backend
