/*
File Name:  store.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Persistence backends for a single serialized AddrBook blob, keyed by name
so a daemon could in principle keep more than one book (e.g. per
listening network) in the same store.
*/

package diskstore

// Store is the interface for persisting the serialized form of an address
// book. Implementations do not know anything about addrbook.Book; they
// only move bytes.
type Store interface {
	// Set stores data under key, replacing any existing value.
	Set(key []byte, data []byte) error

	// Get returns the value for key if present.
	Get(key []byte) (data []byte, found bool)

	// Delete removes a key/value pair.
	Delete(key []byte) error

	// Close releases any resources (open files, file handles) held by the
	// store.
	Close() error
}
