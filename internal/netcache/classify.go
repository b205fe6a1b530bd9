package netcache

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Strategy is how a classified request is resolved.
type Strategy int

const (
	// StrategyBypass hands the request to the base transport untouched.
	StrategyBypass Strategy = iota
	// StrategyNetworkFirst tries the network within a bounded wait and
	// falls back to the cache.
	StrategyNetworkFirst
	// StrategyCacheFirst serves a cached entry without touching the
	// network when one exists.
	StrategyCacheFirst
	// StrategyStaleWhileRevalidate serves the cached entry immediately
	// and refreshes it in the background.
	StrategyStaleWhileRevalidate
	// StrategyPassThrough forwards to the network and opportunistically
	// caches successful responses.
	StrategyPassThrough
)

func (s Strategy) String() string {
	switch s {
	case StrategyNetworkFirst:
		return "network-first"
	case StrategyCacheFirst:
		return "cache-first"
	case StrategyStaleWhileRevalidate:
		return "stale-while-revalidate"
	case StrategyPassThrough:
		return "pass-through"
	default:
		return "bypass"
	}
}

// rule is one row of the classification table: an ordered predicate
// bound to a strategy, a named cache, and that cache's retention.
type rule struct {
	class     string
	match     func(*http.Request) bool
	strategy  Strategy
	cacheBase string
	retention Retention
}

var (
	scriptExts = map[string]bool{".js": true, ".mjs": true, ".css": true}
	imageExts  = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".webp": true, ".svg": true, ".ico": true,
	}
	fontExts = map[string]bool{".woff": true, ".woff2": true, ".ttf": true, ".otf": true}
	jsonExts = map[string]bool{".json": true, ".webmanifest": true}
)

// buildRules constructs the classification table for a configuration.
// Evaluated top to bottom, first match wins.
func buildRules(cfg Config) []rule {
	apiHost := hostOf(cfg.APIOrigin)
	mapHosts := hostsOf(cfg.MapTileOrigins)
	fontHosts := hostsOf(cfg.FontOrigins)
	appHost := hostOf(cfg.AppOrigin)

	return []rule{
		{
			class:     "navigation",
			match:     isNavigation,
			strategy:  StrategyNetworkFirst,
			cacheBase: cachePages,
		},
		{
			class:     "asset",
			match:     matchDest([]string{"script", "style", "worker"}, scriptExts),
			strategy:  StrategyStaleWhileRevalidate,
			cacheBase: cacheAssets,
			retention: Retention{MaxEntries: 60, MaxAge: 30 * 24 * time.Hour},
		},
		{
			class:     "image",
			match:     matchDest([]string{"image"}, imageExts),
			strategy:  StrategyCacheFirst,
			cacheBase: cacheImages,
			retention: Retention{MaxEntries: 60, MaxAge: 30 * 24 * time.Hour},
		},
		{
			class:     "api",
			match:     matchHost(map[string]bool{apiHost: apiHost != ""}),
			strategy:  StrategyNetworkFirst,
			cacheBase: cacheAPI,
			retention: Retention{MaxEntries: 100, MaxAge: 24 * time.Hour},
		},
		{
			class:     "map-tile",
			match:     matchHost(mapHosts),
			strategy:  StrategyCacheFirst,
			cacheBase: cacheMapTiles,
			retention: Retention{MaxEntries: 100, MaxAge: 7 * 24 * time.Hour},
		},
		{
			class:     "font",
			match:     anyMatch(matchHost(fontHosts), matchDest([]string{"font"}, fontExts)),
			strategy:  StrategyStaleWhileRevalidate,
			cacheBase: cacheFonts,
			retention: Retention{MaxEntries: 30},
		},
		{
			class:     "json",
			match:     matchDest([]string{"manifest"}, jsonExts),
			strategy:  StrategyStaleWhileRevalidate,
			cacheBase: cacheJSON,
			retention: Retention{MaxEntries: 20, MaxAge: 7 * 24 * time.Hour},
		},
		{
			class:     "default",
			match:     matchHost(map[string]bool{appHost: appHost != ""}),
			strategy:  StrategyPassThrough,
			cacheBase: cacheDefault,
		},
		// Cross-origin unmatched requests are not intercepted.
		{
			class:    "cross-origin",
			match:    func(*http.Request) bool { return true },
			strategy: StrategyBypass,
		},
	}
}

func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// matchDest matches on the Sec-Fetch-Dest header when present, falling
// back to the URL path extension.
func matchDest(dests []string, exts map[string]bool) func(*http.Request) bool {
	destSet := make(map[string]bool, len(dests))
	for _, dest := range dests {
		destSet[dest] = true
	}
	return func(req *http.Request) bool {
		if destSet[req.Header.Get("Sec-Fetch-Dest")] {
			return true
		}
		return exts[strings.ToLower(path.Ext(req.URL.Path))]
	}
}

func matchHost(hosts map[string]bool) func(*http.Request) bool {
	return func(req *http.Request) bool {
		return hosts[strings.ToLower(req.URL.Host)]
	}
}

func anyMatch(matchers ...func(*http.Request) bool) func(*http.Request) bool {
	return func(req *http.Request) bool {
		for _, match := range matchers {
			if match(req) {
				return true
			}
		}
		return false
	}
}

func hostOf(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(origin)
	}
	return strings.ToLower(parsed.Host)
}

func hostsOf(origins []string) map[string]bool {
	hosts := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if host := hostOf(origin); host != "" {
			hosts[host] = true
		}
	}
	return hosts
}
