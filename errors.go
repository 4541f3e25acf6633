/*
File Name:  errors.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package addrbook

import "errors"

// Sentinel errors returned by public AddrBook operations, matching the
// small interface-oriented error style used throughout store/Store.go.
var (
	ErrNotFound    = errors.New("addrbook: address not found")
	ErrNoCandidate = errors.New("addrbook: no candidate address available")
)

// ConsistencyError reports a failed internal-consistency check, carrying
// the same negative numeric code the original addrman implementation
// assigns to each specific violation, so a failure here can be
// cross-referenced against that code directly.
type ConsistencyError struct {
	Code   int
	Reason string
}

func (e *ConsistencyError) Error() string {
	return e.Reason
}

// SerializeFormatError reports a malformed or unsupported on-disk AddrBook
// blob: a truncated stream, a format byte of 0, a compat floor above the
// newest known format, or a structural invariant violated while reading
// (declared table sizes over capacity, an unroutable or duplicate address,
// too many aliases, a loaded state that fails the consistency check).
type SerializeFormatError struct {
	Reason string
}

func (e *SerializeFormatError) Error() string {
	return "addrbook: corrupt serialized data, " + e.Reason
}
