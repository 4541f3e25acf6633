/*
File Name:  persist.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package diskstore

import (
	"bytes"

	"github.com/gossipmesh/addrbook"
)

// defaultKey is the key under which the single address book blob is
// stored. A daemon managing several books should pick distinct keys.
var defaultKey = []byte("addrbook.dat")

// Save serializes book and writes it to store under defaultKey.
func Save(store Store, book *addrbook.Book) error {
	var buf bytes.Buffer
	if err := book.Serialize(&buf); err != nil {
		return err
	}
	return store.Set(defaultKey, buf.Bytes())
}

// Load reads the serialized blob from store, if present, into book.
// found is false if no blob has been saved yet.
func Load(store Store, book *addrbook.Book) (found bool, err error) {
	data, ok := store.Get(defaultKey)
	if !ok {
		return false, nil
	}
	if err := book.Unserialize(bytes.NewReader(data)); err != nil {
		return true, err
	}
	return true, nil
}
