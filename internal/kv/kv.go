// Package kv is the keyed persistence collaborator shared by the settings and
// history stores. Each logical record is written as a whole value; there are no
// partial or field-level writes.
package kv

import "errors"

var (
	// ErrNotFound 键不存在 / ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("kv: key not found")

	// ErrQuotaExceeded 写入超出容量预算 / ErrQuotaExceeded is returned by Set when
	// the write would push stored bytes past the configured budget.
	ErrQuotaExceeded = errors.New("kv: storage quota exceeded")
)

// Store 持久化接口，支持多后端 (file / SQLite / memory)
// Store is the persistence interface supporting multiple backends.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
