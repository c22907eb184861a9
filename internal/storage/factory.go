package storage

import "fmt"

// DefaultStoreKind is the backend used when no kind is named. The
// memory store is always compiled in, so it is the safe default.
func DefaultStoreKind() string {
	return "memory"
}

// NewStore selects a backend by name. The empty kind means memory.
// The sqlite backend exists only in builds tagged `sqlite`; without
// the tag the factory reports how to enable it.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (want memory or sqlite)", kind)
	}
}

// CloseIfSupported closes stores that hold external resources and is a
// no-op for the rest.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
