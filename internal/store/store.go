// Package store persists cluster specifications and configuration payloads. A Store is a flat,
// slash-separated key space; exclusive creation of a key is the only concurrency primitive it offers.
package store

type Store interface {
	// CreateExclusive writes data under key, failing with ErrAlreadyExists if key is already present.
	CreateExclusive(key string, data []byte) error
	// Read fails with ErrNotFound if key is absent.
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	// Delete removes key and every key below it. Deleting an absent key is not an error.
	Delete(key string) error
	// Exists reports whether key, or any key below it, is present.
	Exists(key string) (bool, error)
	// List returns the keys below prefix in lexical order.
	List(prefix string) ([]string, error)
}
