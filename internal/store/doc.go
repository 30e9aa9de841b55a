// Package store defines the generic document-store contract the crawler
// persists through. Implementations live in internal/storage; this package
// must not import database drivers or concrete clients.
package store
