package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// cacheVersion guards the persisted file format. A mismatch is treated the
// same as a corrupt file: start over empty.
const cacheVersion = 1

// TokenEntry is a cached access token with its absolute expiry. The access
// token is short-lived and stored in plaintext; the refresh token never
// appears here.
type TokenEntry struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"` // epoch milliseconds
	ProjectID   string `json:"projectID"`
	Email       string `json:"email,omitempty"`
}

// BackingStore persists the serialized cache. Injectable so tests can run
// against memory instead of the filesystem.
type BackingStore interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileStore persists the cache to a single file with an atomic
// write-then-rename, the same way the pricing cache is persisted.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential cache directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted cache. A missing file yields (nil, nil).
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save writes the full cache contents. Tokens are credentials; the file is
// owner-only.
func (s *FileStore) Save(data []byte) error {
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return nil
}

// MemoryStore keeps the serialized cache in memory, for tests.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemoryStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}

func (s *MemoryStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

type cacheFile struct {
	Version int                   `json:"version"`
	Entries map[string]TokenEntry `json:"entries"`
}

// Cache is the persisted credential cache: loaded lazily once, held in
// memory, written back in full on every mutation so it survives crashes
// between refreshes.
type Cache struct {
	store BackingStore

	mu      sync.Mutex
	entries map[string]TokenEntry
	loaded  bool

	loadGroup singleflight.Group
}

// NewCache creates a cache over the given backing store. Nothing is read
// until the first access.
func NewCache(store BackingStore) *Cache {
	return &Cache{store: store}
}

// ensureLoaded loads the backing store exactly once; concurrent first
// callers share the one in-flight load.
func (c *Cache) ensureLoaded() {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return
	}

	c.loadGroup.Do("load", func() (interface{}, error) {
		entries := c.loadEntries()
		c.mu.Lock()
		if !c.loaded {
			c.entries = entries
			c.loaded = true
		}
		c.mu.Unlock()
		return nil, nil
	})
}

// loadEntries reads and decodes the persisted cache. Any failure (missing,
// corrupt, wrong version) degrades to an empty cache, never an error.
func (c *Cache) loadEntries() map[string]TokenEntry {
	data, err := c.store.Load()
	if err != nil {
		util.LogWarnf("Failed to load credential cache, starting empty: %v", err)
		return map[string]TokenEntry{}
	}
	if len(data) == 0 {
		return map[string]TokenEntry{}
	}

	var file cacheFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		util.LogWarnf("Corrupt credential cache, starting empty: %v", err)
		return map[string]TokenEntry{}
	}
	if file.Version != cacheVersion || file.Entries == nil {
		util.LogDebugf("Credential cache version %d != %d, starting empty", file.Version, cacheVersion)
		return map[string]TokenEntry{}
	}
	return file.Entries
}

// Get returns the cached entry for key if it is still valid past the skew
// margin: entries expiring within skew are treated as already expired so a
// token never dies mid-request. The second return is false on a miss.
func (c *Cache) Get(key string, skew time.Duration) (TokenEntry, bool) {
	c.ensureLoaded()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return TokenEntry{}, false
	}
	if entry.ExpiresAt <= time.Now().UnixMilli()+skew.Milliseconds() {
		return TokenEntry{}, false
	}
	return entry, true
}

// Set upserts an entry and persists the full cache synchronously before
// returning.
func (c *Cache) Set(key string, entry TokenEntry) error {
	c.ensureLoaded()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	return c.persistLocked()
}

// Clear resets the cache to empty and persists.
func (c *Cache) Clear() error {
	c.ensureLoaded()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]TokenEntry{}
	return c.persistLocked()
}

// persistLocked writes the full current in-memory state. Callers hold c.mu,
// which serializes writers so concurrent Sets for different keys cannot
// lose updates.
func (c *Cache) persistLocked() error {
	data, err := sonic.MarshalIndent(cacheFile{Version: cacheVersion, Entries: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential cache: %w", err)
	}
	if err := c.store.Save(data); err != nil {
		return fmt.Errorf("failed to persist credential cache: %w", err)
	}
	return nil
}
