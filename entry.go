/*
File Name:  entry.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package addrbook

// addrEntry is the record for a single (address, source) pair: the network
// address, the originating source, mutable statistics, and its current
// placement. Canonical entries (alias == false) carry the statistics;
// aliases carry only a source and exist solely to remember that another
// peer also announced this address.
type addrEntry struct {
	addr    Address
	source  NetAddr
	inTried bool
	alias   bool

	bucket    int
	bucketPos int

	// randomPos is the index of this entry in the random-sample vector, or
	// -1 for aliases (which are never selected directly).
	randomPos int

	// Statistics. Meaningful on canonical entries only.
	time             int64
	services         ServiceFlags
	lastTry          int64
	lastCountAttempt int64
	lastSuccess      int64
	attempts         int

	// collision and pendingTried{Bucket,Pos} track a new-table entry that
	// lost a race for its tried-table slot against an occupant that is not
	// (yet) known to be evictable. Meaningful only while inTried == false.
	collision          bool
	pendingTriedBucket int
	pendingTriedPos    int
}

func (e *addrEntry) slot() slotKey {
	return slotKey{inTried: e.inTried, bucket: e.bucket, pos: e.bucketPos}
}

// slotKey identifies a single occupancy slot in either the new or tried
// table.
type slotKey struct {
	inTried bool
	bucket  int
	pos     int
}
