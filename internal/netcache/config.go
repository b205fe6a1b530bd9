package netcache

import (
	"errors"
	"time"
)

// Base cache names; the active set is version-qualified so activation
// can recognize and delete caches left behind by older versions.
const (
	cachePages    = "pages"
	cacheAssets   = "assets"
	cacheImages   = "images"
	cacheAPI      = "api"
	cacheMapTiles = "map-tiles"
	cacheFonts    = "fonts"
	cacheJSON     = "json"
	cacheDefault  = "default"
)

var baseCacheNames = []string{
	cachePages, cacheAssets, cacheImages, cacheAPI,
	cacheMapTiles, cacheFonts, cacheJSON, cacheDefault,
}

// Config is the router's explicit versioned configuration. There is no
// ambient global state: the allow-list and version travel with this
// object into the router's startup routine.
type Config struct {
	// Version qualifies every cache name; bumping it orphans the old
	// caches so Activate can delete them.
	Version string

	// CacheRoot is the directory holding one subdirectory per named cache.
	CacheRoot string

	// AppOrigin is the application's own origin. Same-origin requests
	// that match no other rule are passed through and opportunistically
	// cached; cross-origin unmatched requests are not intercepted.
	AppOrigin string

	// APIOrigin hosts the story API; its requests get network-first
	// with a bounded wait.
	APIOrigin string

	// MapTileOrigins and FontOrigins route to cache-first and
	// stale-while-revalidate respectively.
	MapTileOrigins []string
	FontOrigins    []string

	// AppShell is the static file set pre-populated into the pages
	// cache on install, so navigation works offline.
	AppShell []string

	// NetworkTimeout bounds the network attempt of the network-first
	// strategy. Defaults to 3 seconds.
	NetworkTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Version == "" {
		return errors.New("netcache: version is required")
	}
	if c.CacheRoot == "" {
		return errors.New("netcache: cache root is required")
	}
	if c.AppOrigin == "" {
		return errors.New("netcache: app origin is required")
	}
	if c.NetworkTimeout == 0 {
		c.NetworkTimeout = 3 * time.Second
	}
	return nil
}

// CacheName returns the version-qualified name for a base cache name.
func (c Config) CacheName(base string) string {
	return base + "-" + c.Version
}

// AllowList returns the full set of cache names valid for this version.
// Anything else found under CacheRoot is stale and gets deleted on
// activation.
func (c Config) AllowList() []string {
	names := make([]string, 0, len(baseCacheNames))
	for _, base := range baseCacheNames {
		names = append(names, c.CacheName(base))
	}
	return names
}
