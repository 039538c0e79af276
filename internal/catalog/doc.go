// Package catalog is the local record of every track known to this
// machine, kept in a single SQLite table.
//
// The database is created on first use and filled from the remote catalog
// index. If the index cannot be fetched the store starts empty; it is not
// re-synced automatically afterwards; Bootstrap does that on request.
package catalog
