package addrbook

import (
	"bytes"
	"testing"
)

func TestSerializeUnserializeRoundTrip(t *testing.T) {
	b := newTestBook()
	for i := 0; i < 40; i++ {
		b.Add([]AddrMessage{{Address: mustAddr(i), Services: ServiceFlags(i), Time: testNow - 1000 - int64(i)}}, testSource, 0)
	}
	for i := 0; i < 15; i++ {
		b.Good(mustAddr(i), testNow)
	}
	b.ResolveCollisions()

	// Grow an alias on one surviving new-table address. Every source below
	// is in the 8.8/16 group, so they all map to one new-table slot and at
	// most one alias is created.
	aliased := mustAddr(20)
	for i := 0; i < 200; i++ {
		src := NetAddr{Net: NetworkIPv4, IP: []byte{8, 8, byte(i), 1}}
		b.Add([]AddrMessage{{Address: aliased, Time: testNow - 1020 + 30}}, src, 0)
	}

	var buf bytes.Buffer
	if err := b.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored := NewBook(Config{Deterministic: true})
	fixTime(restored, testNow)
	if err := restored.Unserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}

	wantNew, wantTried := b.Size()
	gotNew, gotTried := restored.Size()
	if wantNew != gotNew || wantTried != gotTried {
		t.Fatalf("size mismatch: want %d/%d, got %d/%d", wantNew, wantTried, gotNew, gotTried)
	}

	for i := 0; i < 40; i++ {
		addr := mustAddr(i)
		want, err := b.FindAddressEntry(addr)
		if err != nil {
			// Evicted before serialization; must be equally absent after.
			if _, err := restored.FindAddressEntry(addr); err == nil {
				t.Fatalf("entry %d absent before round trip but present after", i)
			}
			continue
		}
		got, err := restored.FindAddressEntry(addr)
		if err != nil {
			t.Fatalf("unexpected error finding restored entry %d: %v", i, err)
		}
		if want.InTried != got.InTried || want.Time != got.Time || want.Services != got.Services ||
			want.LastTry != got.LastTry || want.LastSuccess != got.LastSuccess || want.Attempts != got.Attempts ||
			want.AliasCount != got.AliasCount {
			t.Fatalf("entry %d mismatch after round trip: want %+v, got %+v", i, want, got)
		}
	}

	if err := restored.Check(); err != nil {
		t.Fatalf("restored book failed consistency check: %v", err)
	}
}

func TestUnserializeRejectsBadCompat(t *testing.T) {
	buf := []byte{formatMultiIndex, 0 /* compat below the 32 floor */}
	b := NewBook(Config{Deterministic: true})
	if err := b.Unserialize(bytes.NewReader(buf)); err == nil {
		t.Fatalf("expected an error for an invalid compat byte")
	}
}

func TestUnserializeRejectsFutureCompatFloor(t *testing.T) {
	// A stream whose lowest-compatible format is beyond anything this
	// reader knows must be rejected.
	buf := []byte{formatMultiIndex + 1, 32 + formatMultiIndex + 1}
	b := NewBook(Config{Deterministic: true})
	err := b.Unserialize(bytes.NewReader(buf))
	if _, ok := err.(*SerializeFormatError); !ok {
		t.Fatalf("expected SerializeFormatError, got %v", err)
	}
}

func TestUnserializeAcceptsFutureFormatWithKnownFloor(t *testing.T) {
	// A future format whose compat floor is still within reach must be
	// accepted and read as the newest format this reader understands.
	var buf bytes.Buffer
	buf.WriteByte(formatMultiIndex + 1)
	buf.WriteByte(32 + formatMultiIndex)
	var key [32]byte
	key[0] = 1
	buf.Write(key[:])
	writeU32(&buf, 0) // nNew
	writeU32(&buf, 0) // nTried
	writeU32(&buf, 0) // entry count

	b := NewBook(Config{Deterministic: true})
	if err := b.Unserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("expected future format with a known floor to load, got %v", err)
	}
	newCount, triedCount := b.Size()
	if newCount != 0 || triedCount != 0 {
		t.Fatalf("expected an empty book, got %d/%d", newCount, triedCount)
	}
}

func TestUnserializeLegacyFormat(t *testing.T) {
	addr := mustAddr(1)

	var buf bytes.Buffer
	buf.WriteByte(3)      // legacy format
	buf.WriteByte(32 + 1) // lowest compatible 1
	var key [32]byte
	key[0] = 1
	buf.Write(key[:])
	writeU32(&buf, 1)                 // nNew
	writeU32(&buf, 0)                 // nTried
	writeU32(&buf, 64^(1<<30))        // obfuscated bucket count, ignored
	writeNetAddrPort(&buf, addr)      // one self-contained record follows
	writeNetAddr(&buf, testSource)
	writeU64(&buf, 5)                 // services
	writeI64(&buf, testNow-1000)      // time
	writeI64(&buf, 0)                 // lastSuccess
	writeI64(&buf, 0)                 // lastTry
	writeI64(&buf, 0)                 // lastCountAttempt
	writeU32(&buf, 0)                 // attempts
	buf.WriteByte(0)                  // not tried
	buf.Write([]byte{1, 2, 3, 4, 5})  // trailing bucket layout + checksum, ignored

	b := NewBook(Config{Deterministic: true})
	fixTime(b, testNow)
	if err := b.Unserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("legacy Unserialize failed: %v", err)
	}

	info, err := b.FindAddressEntry(addr)
	if err != nil {
		t.Fatalf("expected legacy entry to load: %v", err)
	}
	if info.InTried || info.Time != testNow-1000 || info.Services != 5 {
		t.Fatalf("legacy entry loaded wrong: %+v", info)
	}
	if info.AliasCount != 0 {
		t.Fatalf("legacy formats predate aliases, got %d", info.AliasCount)
	}
	if err := b.Check(); err != nil {
		t.Fatalf("loaded legacy book failed consistency check: %v", err)
	}
}

func TestUnserializeTruncatedStream(t *testing.T) {
	b := newTestBook()
	for i := 0; i < 10; i++ {
		b.Add([]AddrMessage{{Address: mustAddr(i), Time: testNow - 1000}}, testSource, 0)
	}
	var buf bytes.Buffer
	if err := b.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	truncated := buf.Bytes()[:buf.Len()/2]
	restored := NewBook(Config{Deterministic: true})
	if err := restored.Unserialize(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected an error for a truncated stream")
	}
}

func TestSerializeKeySurvivesRoundTrip(t *testing.T) {
	b := newTestBook()
	b.Add([]AddrMessage{{Address: mustAddr(1), Time: testNow - 1000}}, testSource, 0)

	var buf bytes.Buffer
	if err := b.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored := NewBook(Config{}) // random key, replaced on load
	fixTime(restored, testNow)
	if err := restored.Unserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Unserialize failed: %v", err)
	}
	if restored.key != b.key {
		t.Fatalf("expected the serialized secret key to replace the fresh one")
	}
}
