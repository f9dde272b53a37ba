package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/harulua/coreheart/internal/config"
)

// Backend persists whole documents by key. Keys are slash-separated paths
// relative to the base directory ("public/central-memory.json").
//
// Read returns an error wrapping fs.ErrNotExist when the key has never been
// written. For append-only keys Read returns every appended line in order.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Append(ctx context.Context, key string, line []byte) error
	Close() error
}

// OpenBackend returns the backend selected by cfg.Backend rooted at baseDir.
func OpenBackend(baseDir string, cfg *config.Config) (Backend, error) {
	backend := config.BackendFile
	if cfg != nil && cfg.Backend != "" {
		backend = cfg.Backend
	}

	switch backend {
	case config.BackendFile:
		return NewFileBackend(baseDir)
	case config.BackendSQLite:
		database, err := Init(baseDir)
		if err != nil {
			return nil, err
		}
		ConfigurePool(database, cfg)
		return NewSQLiteBackend(database), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// cleanKey validates a document key. Keys never escape the base directory.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return cleaned, nil
}

func notExist(key string) error {
	return fmt.Errorf("document %s: %w", key, fs.ErrNotExist)
}
