package storage

import (
	"errors"
	"fmt"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NewStore opens the parameter store backend named by kind. An empty kind
// selects the in-memory store; DefaultStoreKind reports which backend the
// binary prefers. sqlitePath is only read by the sqlite backend, which needs
// the sqlite build tag.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, kind)
	}
}

// CloseIfSupported releases the backend's resources when it holds any.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
