/*
File Name:  consistency.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Internal self-check, mirroring the original addrman's CheckAddrman. Where a
violation has a direct analogue in the reference implementation it carries
the reference's own negative code (-1, -2, -3, -5, -6, -7, -8, -22, -23),
so a failure here can be cross-referenced against that code directly. Code
-4 covers map-integrity violations specific to this representation, which
the reference's multi-index container rules out by construction.
*/

package addrbook

// Check runs the full consistency check and returns a ConsistencyError
// describing the first violation found, or nil if the book is internally
// consistent. It is not on any hot path; callers normally rely on the
// probabilistic self-check driven by Config.ConsistencyCheckRatio instead
// of calling this directly outside of tests.
func (b *Book) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check()
}

func (b *Book) check() error {
	countedNew, countedTried := 0, 0

	for _, e := range b.idx.bySlot {
		if e.alias {
			// Tried entries cannot have aliases.
			if e.inTried {
				return &ConsistencyError{Code: -1, Reason: "alias entry found in the tried table"}
			}
			// Aliases must hang off a canonical entry for the same address.
			canonical := b.idx.findCanonical(e.addr)
			if canonical == nil || canonical == e {
				return &ConsistencyError{Code: -2, Reason: "alias entry without a canonical entry for its address"}
			}
			if e.randomPos != -1 {
				return &ConsistencyError{Code: -2, Reason: "alias entry has a random-vector position"}
			}
		} else {
			if e.randomPos < 0 || e.randomPos >= len(b.random) {
				return &ConsistencyError{Code: -22, Reason: "random-vector position out of range"}
			}
			if b.random[e.randomPos] != e {
				return &ConsistencyError{Code: -23, Reason: "random vector does not point back at entry"}
			}
			if b.idx.findCanonical(e.addr) != e {
				return &ConsistencyError{Code: -3, Reason: "second canonical entry found for one address"}
			}
			if e.inTried {
				countedTried++
			} else {
				countedNew++
			}
		}

		// Placement must be exactly what the hasher derives from the
		// entry's current fields; an in-range but stale bucket or position
		// is corruption all the same.
		wantBucket, wantPos := b.hasher.rebucket(e.inTried, e.addr, e.source)
		if e.bucket != wantBucket || e.bucketPos != wantPos {
			return &ConsistencyError{Code: -5, Reason: "bucket placement does not match the hasher"}
		}
	}

	if countedNew != b.nNew {
		return &ConsistencyError{Code: -6, Reason: "new-table count mismatch"}
	}
	if countedTried != b.nTried {
		return &ConsistencyError{Code: -7, Reason: "tried-table count mismatch"}
	}
	if len(b.random) != countedNew+countedTried {
		return &ConsistencyError{Code: -8, Reason: "random vector size mismatch"}
	}

	for key, group := range b.idx.byAddr {
		if len(group) == 0 {
			return &ConsistencyError{Code: -4, Reason: "empty byAddr group left behind"}
		}
		if group[0].alias {
			return &ConsistencyError{Code: -4, Reason: "byAddr group has no canonical entry in first position"}
		}
		for i, e := range group {
			if i > 0 && !e.alias {
				return &ConsistencyError{Code: -3, Reason: "second canonical entry found for one address"}
			}
			if e.addr.mapKey() != key {
				return &ConsistencyError{Code: -4, Reason: "byAddr group keyed under the wrong address"}
			}
		}
	}

	for i, e := range b.random {
		if e.randomPos != i {
			return &ConsistencyError{Code: -23, Reason: "random vector back-pointer mismatch"}
		}
	}

	return nil
}
