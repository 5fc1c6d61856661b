package store

import (
	"fmt"
	"strings"
)

// Kinds lists the backends accepted by NewStore.
var Kinds = []string{"fs", "sqlite"}

// NewStore opens a store backend. The fs backend treats path as its base
// directory, the sqlite backend as its database file.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "fs":
		return NewFSStore(path)
	case "sqlite":
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (available: %s)", kind, strings.Join(Kinds, ", "))
	}
}

// CloseIfSupported closes stores that hold resources.
func CloseIfSupported(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
