/*
File Name:  file.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

FileStore is the plain-file persistence backend: every Set writes to a
temp file in the same directory and renames it over the destination, so a
crash mid-write never leaves a half-written address book on disk.
*/

package diskstore

import (
	"os"
	"path/filepath"
)

// FileStore persists each key as its own file below dir. Key names must
// already be filesystem-safe; callers typically use a single fixed key
// such as "addrbook.dat".
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if
// necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key []byte) string {
	return filepath.Join(s.dir, string(key))
}

// Set atomically replaces the contents stored under key.
func (s *FileStore) Set(key []byte, data []byte) error {
	dest := s.path(key)
	tmp, err := os.CreateTemp(s.dir, string(key)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

func (s *FileStore) Get(key []byte) (data []byte, found bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *FileStore) Delete(key []byte) error {
	err := os.Remove(s.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error { return nil }
