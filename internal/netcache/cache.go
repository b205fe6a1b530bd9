package netcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"storysync/internal/metrics"
)

// Retention bounds one named cache. Zero values mean unbounded.
type Retention struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Cache is one named, disk-backed response cache with independent
// retention bounds. Entries live as <key>.json metadata plus <key>.body
// under the cache's directory. Eviction is FIFO by insertion time and
// runs opportunistically after each write, not on a timer.
type Cache struct {
	name      string
	dir       string
	retention Retention
	mu        sync.Mutex
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func newCache(root, name string, retention Retention, logger *slog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		name:      name,
		dir:       filepath.Join(root, name),
		retention: retention,
		logger:    logger.With("cache", name),
		metrics:   m,
	}
}

// Name returns the version-qualified cache name.
func (c *Cache) Name() string { return c.name }

// Lookup returns the cached entry for the key, or nil on a miss. An
// entry past the cache's max age counts as a miss and is removed.
func (c *Cache) Lookup(key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.loadEntry(key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		c.metrics.CacheMiss(c.name)
		return nil, nil
	}

	if c.retention.MaxAge > 0 && entry.Age(time.Now()) > c.retention.MaxAge {
		c.removeEntry(key)
		c.metrics.CacheMiss(c.name)
		return nil, nil
	}

	c.metrics.CacheHit(c.name)
	return entry, nil
}

// Store writes an entry and then enforces the retention bounds.
func (c *Cache) Store(entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	key := entry.Metadata.CacheKey
	if err := os.WriteFile(c.metadataPath(key), meta, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.WriteFile(c.bodyPath(key), entry.Body, 0o644); err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	c.evict()
	return nil
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listKeys())
}

// Clear removes every entry in this cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear cache %s: %w", c.name, err)
	}
	return nil
}

func (c *Cache) metadataPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) bodyPath(key string) string {
	return filepath.Join(c.dir, key+".body")
}

func (c *Cache) loadEntry(key string) (*Entry, error) {
	meta, err := os.ReadFile(c.metadataPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var metadata EntryMetadata
	if err := json.Unmarshal(meta, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	body, err := os.ReadFile(c.bodyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		// Metadata without a body is a broken entry; treat as a miss.
		c.removeEntry(key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Entry{Metadata: metadata, Body: body}, nil
}

func (c *Cache) removeEntry(key string) {
	_ = os.Remove(c.metadataPath(key))
	_ = os.Remove(c.bodyPath(key))
}

func (c *Cache) listKeys() []string {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		if filepath.Ext(file.Name()) == ".json" {
			keys = append(keys, strings.TrimSuffix(file.Name(), ".json"))
		}
	}
	return keys
}

type agedKey struct {
	key      string
	storedAt time.Time
}

// evict drops entries past MaxAge and then the oldest entries beyond
// MaxEntries. Caller holds the lock.
func (c *Cache) evict() {
	if c.retention.MaxEntries == 0 && c.retention.MaxAge == 0 {
		return
	}

	keys := c.listKeys()
	aged := make([]agedKey, 0, len(keys))

	now := time.Now()
	for _, key := range keys {
		meta, err := os.ReadFile(c.metadataPath(key))
		if err != nil {
			c.removeEntry(key)
			continue
		}
		var metadata EntryMetadata
		if err := json.Unmarshal(meta, &metadata); err != nil {
			c.removeEntry(key)
			continue
		}

		if c.retention.MaxAge > 0 && now.Sub(metadata.StoredAt) > c.retention.MaxAge {
			c.removeEntry(key)
			c.metrics.CacheEviction(c.name)
			c.logger.Debug("evicted expired entry", "key", key)
			continue
		}

		aged = append(aged, agedKey{key: key, storedAt: metadata.StoredAt})
	}

	if c.retention.MaxEntries == 0 || len(aged) <= c.retention.MaxEntries {
		return
	}

	sort.Slice(aged, func(i, j int) bool {
		return aged[i].storedAt.Before(aged[j].storedAt)
	})

	excess := len(aged) - c.retention.MaxEntries
	for _, victim := range aged[:excess] {
		c.removeEntry(victim.key)
		c.metrics.CacheEviction(c.name)
		c.logger.Debug("evicted oldest entry", "key", victim.key)
	}
}
