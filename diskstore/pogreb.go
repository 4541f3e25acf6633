/*
File Name:  pogreb.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package diskstore

import (
	"io"
	"log"
	"sync"

	"github.com/akrylysov/pogreb"
)

// PogrebStore is a key/value store backed by Pogreb, suited to a daemon
// that keeps more than one address book (multiple listening networks) in
// the same data directory.
type PogrebStore struct {
	mutex sync.Mutex
	db    *pogreb.DB
}

// NewPogrebStore opens (creating if necessary) a Pogreb-backed store at
// filename.
func NewPogrebStore(filename string) (*PogrebStore, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}
	return &PogrebStore{db: db}, nil
}

func (s *PogrebStore) Set(key []byte, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.db.Put(key, data)
}

func (s *PogrebStore) Get(key []byte) (data []byte, found bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	value, err := s.db.Get(key)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

func (s *PogrebStore) Delete(key []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.db.Delete(key)
}

func (s *PogrebStore) Close() error {
	return s.db.Close()
}
