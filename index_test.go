package addrbook

import "testing"

func TestAddrIndexInsertEraseRoundtrip(t *testing.T) {
	idx := newAddrIndex()
	addr := testAddr(1)
	entry := &addrEntry{addr: addr, bucket: 1, bucketPos: 2}
	idx.insert(entry)

	if got := idx.findCanonical(addr); got != entry {
		t.Fatalf("findCanonical did not return inserted entry")
	}
	if got := idx.slot(entry.slot()); got != entry {
		t.Fatalf("slot did not return inserted entry")
	}
	if idx.countAddr(addr) != 1 {
		t.Fatalf("expected count 1, got %d", idx.countAddr(addr))
	}

	idx.erase(entry)
	if got := idx.findCanonical(addr); got != nil {
		t.Fatalf("expected no canonical entry after erase, got %v", got)
	}
	if got := idx.slot(entry.slot()); got != nil {
		t.Fatalf("expected no slot occupant after erase, got %v", got)
	}
}

func TestAddrIndexCanonicalSortsFirst(t *testing.T) {
	idx := newAddrIndex()
	addr := testAddr(1)
	canonical := &addrEntry{addr: addr, bucket: 1, bucketPos: 1}
	alias := &addrEntry{addr: addr, alias: true, bucket: 2, bucketPos: 2, randomPos: -1}

	idx.insert(alias)
	idx.insert(canonical)

	group := idx.aliases(addr)
	if len(group) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(group))
	}
	if group[0] != canonical {
		t.Fatalf("expected canonical entry to sort first")
	}
}

func TestAddrIndexAllIsBucketOrdered(t *testing.T) {
	idx := newAddrIndex()
	e1 := &addrEntry{addr: testAddr(1), inTried: false, bucket: 5, bucketPos: 1}
	e2 := &addrEntry{addr: testAddr(2), inTried: false, bucket: 1, bucketPos: 9}
	e3 := &addrEntry{addr: testAddr(3), inTried: true, bucket: 0, bucketPos: 0}
	idx.insert(e1)
	idx.insert(e2)
	idx.insert(e3)

	all := idx.all()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	// new-table entries sort before tried, then by bucket, then by position.
	if all[0] != e2 || all[1] != e1 || all[2] != e3 {
		t.Fatalf("unexpected bucket order: %+v", all)
	}
}
