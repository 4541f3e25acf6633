package diskstore

import (
	"testing"

	"github.com/gossipmesh/addrbook"
)

func testBook() *addrbook.Book {
	return addrbook.NewBook(addrbook.Config{Deterministic: true})
}

func fillBook(b *addrbook.Book) {
	source := addrbook.NetAddr{Net: addrbook.NetworkIPv4, IP: []byte{192, 168, 1, 1}}
	for i := 0; i < 25; i++ {
		addr := addrbook.Address{
			NetAddr: addrbook.NetAddr{Net: addrbook.NetworkIPv4, IP: []byte{10, 0, byte(i >> 8), byte(i)}},
			Port:    8333,
		}
		b.Add([]addrbook.AddrMessage{{Address: addr, Time: 1700000000}}, source, 0)
	}
}

func TestSaveLoadMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	book := testBook()
	fillBook(book)
	if err := Save(store, book); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := testBook()
	found, err := Load(store, restored)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatalf("expected a saved blob to be found")
	}

	wantNew, wantTried := book.Size()
	gotNew, gotTried := restored.Size()
	if wantNew != gotNew || wantTried != gotTried {
		t.Fatalf("size mismatch after load: want %d/%d, got %d/%d", wantNew, wantTried, gotNew, gotTried)
	}
}

func TestLoadMissingBlob(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	found, err := Load(store, testBook())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected no blob in a fresh store")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer store.Close()

	key := []byte("addrbook.dat")
	if err := store.Set(key, []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(key, []byte("second")); err != nil {
		t.Fatalf("replacing Set failed: %v", err)
	}

	data, found := store.Get(key)
	if !found || string(data) != "second" {
		t.Fatalf("expected latest value, got %q found=%v", data, found)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := store.Get(key); found {
		t.Fatalf("expected key gone after Delete")
	}
	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete of a missing key must be a no-op, got %v", err)
	}
}
