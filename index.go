/*
File Name:  index.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

addrIndex is the multi-keyed associative container described in spec §4.2:
every entry (canonical or alias) is reachable both by address and by the
bucket slot it occupies. It owns no locking of its own — the caller
(AddrBook) holds a single exclusive mutex around every operation, per §5.
*/

package addrbook

import "sort"

// addrIndex holds every entry known to the address book, indexed by address
// (canonical entry first, then aliases in insertion order) and by bucket
// slot.
type addrIndex struct {
	byAddr map[string][]*addrEntry
	bySlot map[slotKey]*addrEntry
}

func newAddrIndex() *addrIndex {
	return &addrIndex{
		byAddr: make(map[string][]*addrEntry),
		bySlot: make(map[slotKey]*addrEntry),
	}
}

// findCanonical returns the canonical entry for addr, or nil.
func (idx *addrIndex) findCanonical(addr Address) *addrEntry {
	group := idx.byAddr[addr.mapKey()]
	if len(group) == 0 {
		return nil
	}
	return group[0]
}

// aliases returns every entry (canonical first, then aliases) for addr.
// The returned slice must not be mutated by the caller.
func (idx *addrIndex) aliases(addr Address) []*addrEntry {
	return idx.byAddr[addr.mapKey()]
}

// countAddr returns the number of occurrences of addr, including aliases.
func (idx *addrIndex) countAddr(addr Address) int {
	return len(idx.byAddr[addr.mapKey()])
}

// slot returns the entry occupying the given slot, or nil.
func (idx *addrIndex) slot(s slotKey) *addrEntry {
	return idx.bySlot[s]
}

// insert adds entry to both orderings. The slot (inTried, bucket,
// bucketPos) must be free; the caller is responsible for having evicted
// any incumbent first (spec §4.2).
func (idx *addrIndex) insert(entry *addrEntry) {
	key := entry.addr.mapKey()
	group := idx.byAddr[key]
	if entry.alias {
		idx.byAddr[key] = append(group, entry)
	} else {
		// Canonical entries must sort first. There should be no existing
		// canonical entry for this address (callers enforce invariant #2),
		// so this only ever prepends to a (possibly empty) alias-only group;
		// a non-empty one occurs when eraseEntry re-inserts a canonical
		// entry that has taken over one of several aliases' slots.
		idx.byAddr[key] = append([]*addrEntry{entry}, group...)
	}
	idx.bySlot[entry.slot()] = entry
}

// erase removes entry from both orderings.
func (idx *addrIndex) erase(entry *addrEntry) {
	key := entry.addr.mapKey()
	group := idx.byAddr[key]
	for i, e := range group {
		if e == entry {
			group = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(group) == 0 {
		delete(idx.byAddr, key)
	} else {
		idx.byAddr[key] = group
	}
	if idx.bySlot[entry.slot()] == entry {
		delete(idx.bySlot, entry.slot())
	}
}

// relocate updates entry's bucket/bucketPos to newBucket/newPos and moves
// it in the by-slot ordering. The caller must have ensured the destination
// slot is free.
func (idx *addrIndex) relocate(entry *addrEntry, newBucket, newPos int) {
	delete(idx.bySlot, entry.slot())
	entry.bucket, entry.bucketPos = newBucket, newPos
	idx.bySlot[entry.slot()] = entry
}

// all returns every entry in bucket order (is_tried, bucket, bucket_pos
// ascending), for serialization. It is not on any hot path.
func (idx *addrIndex) all() []*addrEntry {
	out := make([]*addrEntry, 0, len(idx.bySlot))
	for _, e := range idx.bySlot {
		out = append(out, e)
	}
	sortEntriesByBucket(out)
	return out
}

func sortEntriesByBucket(entries []*addrEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return lessBySlot(entries[i], entries[j])
	})
}

func lessBySlot(a, b *addrEntry) bool {
	if a.inTried != b.inTried {
		return !a.inTried && b.inTried
	}
	if a.bucket != b.bucket {
		return a.bucket < b.bucket
	}
	return a.bucketPos < b.bucketPos
}
