// Package precache warms a freshly started node with the bundled assets the
// management UI expects to find.
package precache
