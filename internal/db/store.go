package db

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harulua/coreheart/internal/config"
)

// Store is the typed document layer over a Backend. Every read-modify-write
// in ops holds the per-key locks of the documents it touches.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	asideSeen map[string]bool
}

// NewStore wraps backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:   backend,
		logger:    slog.Default(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
		asideSeen: make(map[string]bool),
	}
}

// Open creates the backend selected by cfg under baseDir and wraps it in a Store.
func Open(baseDir string, cfg *config.Config) (*Store, error) {
	backend, err := OpenBackend(baseDir, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(backend), nil
}

// WithLogger sets the logger used for migration and recovery messages.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Lock acquires the in-process lock of every key and returns the function
// that releases them. Keys are locked in sorted order so two callers locking
// overlapping sets cannot deadlock.
func (s *Store) Lock(keys ...string) (unlock func()) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		m := s.keyLock(k)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}
