package addrbook

import "testing"

// growAliases adds addr from distinct sources with a just-newer claim until
// at least one alias exists, bounded so a cold RNG streak cannot hang the
// test.
func growAliases(t *testing.T, b *Book, addr Address, seen int64) {
	t.Helper()
	for i := 0; i < 512; i++ {
		src := NetAddr{Net: NetworkIPv4, IP: []byte{8, 8, byte(i), 1}}
		b.Add([]AddrMessage{{Address: addr, Time: seen + 30}}, src, 0)
		if info, _ := b.FindAddressEntry(addr); info.AliasCount > 0 {
			return
		}
	}
	t.Fatalf("alias growth never succeeded in 512 rounds")
}

func TestCheckPassesWithAlias(t *testing.T) {
	b := newTestBook()
	addr := mustAddr(1)
	seen := testNow - 1000

	b.Add([]AddrMessage{{Address: addr, Time: seen}}, testSource, 0)
	growAliases(t, b, addr, seen)

	if err := b.Check(); err != nil {
		t.Fatalf("expected book with alias entries to be consistent, got %v", err)
	}
}

func TestGoodRemovesAliases(t *testing.T) {
	b := newTestBook()
	addr := mustAddr(1)
	seen := testNow - 1000

	b.Add([]AddrMessage{{Address: addr, Time: seen}}, testSource, 0)
	growAliases(t, b, addr, seen)

	if !b.Good(addr, testNow) {
		t.Fatalf("expected promotion into tried")
	}

	info, err := b.FindAddressEntry(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.AliasCount != 0 {
		t.Fatalf("expected aliases to be removed once an address is known-good, got %d", info.AliasCount)
	}
	if err := b.Check(); err != nil {
		t.Fatalf("unexpected inconsistency after Good: %v", err)
	}
}

func TestCheckDetectsCountMismatch(t *testing.T) {
	b := newTestBook()
	b.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)

	b.nNew++
	err := b.Check()
	ce, ok := err.(*ConsistencyError)
	if !ok {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Code != -6 {
		t.Fatalf("expected code -6 for a new-count mismatch, got %d", ce.Code)
	}
}

func TestCheckDetectsRandomVectorCorruption(t *testing.T) {
	b := newTestBook()
	b.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)
	b.Add([]AddrMessage{{Address: mustAddr(2), Time: testNow - 1000}}, testSource, 0)
	if len(b.random) != 2 {
		t.Fatalf("setup: expected both addresses to be placed, got %d", len(b.random))
	}

	b.random[0], b.random[1] = b.random[1], b.random[0] // back-pointers now stale
	if err := b.Check(); err == nil {
		t.Fatalf("expected the checker to catch a corrupted random vector")
	}
}

func TestCheckDetectsBucketOutOfRange(t *testing.T) {
	b := newTestBook()
	b.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)

	entry := b.idx.findCanonical(mustAddr(1))
	b.idx.relocate(entry, newBucketCount+5, entry.bucketPos)
	err := b.Check()
	ce, ok := err.(*ConsistencyError)
	if !ok {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Code != -5 {
		t.Fatalf("expected code -5 for a bucket the hasher would never produce, got %d", ce.Code)
	}
}

func TestCheckDetectsWrongPlacementInRange(t *testing.T) {
	b := newTestBook()
	b.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)

	// An in-range bucket that simply isn't the one the hasher derives for
	// this entry is corruption all the same, e.g. a placement left stale
	// by a NetGroup change.
	entry := b.idx.findCanonical(mustAddr(1))
	b.idx.relocate(entry, (entry.bucket+1)%newBucketCount, entry.bucketPos)
	err := b.Check()
	ce, ok := err.(*ConsistencyError)
	if !ok {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Code != -5 {
		t.Fatalf("expected code -5 for a stale in-range placement, got %d", ce.Code)
	}

	// Same for a wrong position inside the right bucket.
	b2 := newTestBook()
	b2.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)
	entry2 := b2.idx.findCanonical(mustAddr(1))
	b2.idx.relocate(entry2, entry2.bucket, (entry2.bucketPos+1)%bucketSize)
	err = b2.Check()
	ce, ok = err.(*ConsistencyError)
	if !ok {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if ce.Code != -5 {
		t.Fatalf("expected code -5 for a wrong in-bucket position, got %d", ce.Code)
	}
}
