package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists each key as one file under a base directory. Writes go
// through a temp file plus rename so a crash never leaves a half-written
// record.
type FileStore struct {
	baseDir  string
	maxBytes int64 // 0 = unlimited
	mu       sync.Mutex
}

// NewFileStore 创建文件后端；maxBytes 为所有键的总字节预算，0 表示不限
// NewFileStore creates the file backend. maxBytes is the byte budget across all
// stored values; 0 disables the budget.
func NewFileStore(baseDir string, maxBytes int64) (*FileStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, fmt.Errorf("kv base dir is empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir, maxBytes: maxBytes}, nil
}

func (s *FileStore) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("invalid kv key %q", key)
	}
	return filepath.Join(s.baseDir, key+".json"), nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read kv %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 {
		used, err := s.usedBytesExcept(path)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > s.maxBytes {
			return ErrQuotaExceeded
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("write kv %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename kv %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// usedBytesExcept sums stored value sizes, skipping the file about to be
// replaced so an overwrite is charged only for its new size.
func (s *FileStore) usedBytesExcept(replacing string) (int64, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("scan kv dir: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		full := filepath.Join(s.baseDir, e.Name())
		if full == replacing {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
