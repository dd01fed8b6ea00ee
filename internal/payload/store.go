// Package payload holds the immutable snapshot every download is served from.
package payload

import "fmt"

// Source yields the name and content of an artifact. It is consulted once,
// when a Store is built.
type Source interface {
	Name() string
	Bytes() ([]byte, error)
}

// Store is a read-only name and byte payload. It is safe for concurrent use.
type Store struct {
	name string
	data []byte
}

// New copies data into a new Store.
func New(name string, data []byte) *Store {
	return &Store{name: name, data: append([]byte(nil), data...)}
}

// FromSource snapshots src.
func FromSource(src Source) (*Store, error) {
	b, err := src.Bytes()
	if err != nil {
		return nil, fmt.Errorf("read payload %q: %w", src.Name(), err)
	}
	return New(src.Name(), b), nil
}

// Name returns the artifact name.
func (s *Store) Name() string { return s.name }

// Bytes returns the shared payload. Callers must not modify it.
func (s *Store) Bytes() []byte { return s.data }

// Len returns the payload size in bytes.
func (s *Store) Len() int { return len(s.data) }

// Filename is the download file name: the artifact name plus ext.
func (s *Store) Filename(ext string) string {
	if ext == "" {
		return s.name
	}
	return s.name + "." + ext
}
