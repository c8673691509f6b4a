// Package kvstore provides small durable key-value stores used to keep
// client-side state (the calendar token pair) across runs.
package kvstore

// Store is a durable string key-value store. SetMany and Delete apply all
// of their keys or none of them.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// SetMany writes every entry together.
	SetMany(entries map[string]string) error
	// Delete removes every key together. Missing keys are ignored.
	Delete(keys ...string) error
	// Close releases resources held by the store.
	Close() error
}
