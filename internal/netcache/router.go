package netcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storysync/internal/metrics"
)

// Router intercepts outbound HTTP requests at the transport boundary,
// classifies each one against an ordered rule table, and resolves it
// with that rule's caching strategy. It is transparent to callers:
// install it as an http.Client transport and every request passes
// through it.
type Router struct {
	cfg     Config
	base    http.RoundTripper
	rules   []rule
	caches  map[string]*Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter builds a router from its versioned configuration. A nil
// base uses http.DefaultTransport.
func NewRouter(cfg Config, base http.RoundTripper, logger *slog.Logger, m *metrics.Metrics) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if base == nil {
		base = http.DefaultTransport
	}

	router := &Router{
		cfg:     cfg,
		base:    base,
		rules:   buildRules(cfg),
		caches:  make(map[string]*Cache),
		logger:  logger.With("component", "netcache"),
		metrics: m,
	}

	for _, r := range router.rules {
		if r.cacheBase == "" {
			continue
		}
		name := cfg.CacheName(r.cacheBase)
		router.caches[r.cacheBase] = newCache(cfg.CacheRoot, name, r.retention, router.logger, m)
	}

	return router, nil
}

// Install pre-populates the app-shell file set into the pages cache so
// navigation has an offline fallback from the first run. Any failed
// fetch fails the whole install.
func (r *Router) Install(ctx context.Context) error {
	pages := r.caches[cachePages]

	for _, rawURL := range r.cfg.AppShell {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("install %s: %w", rawURL, err)
		}

		resp, err := r.base.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("install %s: %w", rawURL, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("install %s: read body: %w", rawURL, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("install %s: unexpected status %d", rawURL, resp.StatusCode)
		}

		if err := pages.Store(newEntry(req, resp.StatusCode, resp.Header, body)); err != nil {
			return fmt.Errorf("install %s: %w", rawURL, err)
		}
	}

	r.logger.Info("app shell installed", "entries", len(r.cfg.AppShell))
	return nil
}

// Activate deletes every cache directory under the root that is not in
// the current version's allow-list, then takes effect immediately for
// all traffic through this transport.
func (r *Router) Activate() error {
	allowed := make(map[string]bool)
	for _, name := range r.cfg.AllowList() {
		allowed[name] = true
	}

	entries, err := os.ReadDir(r.cfg.CacheRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || allowed[entry.Name()] {
			continue
		}
		r.logger.Info("deleting stale cache", "name", entry.Name())
		if err := os.RemoveAll(filepath.Join(r.cfg.CacheRoot, entry.Name())); err != nil {
			return fmt.Errorf("delete stale cache %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Cache exposes a named cache for inspection. Nil for unknown names.
func (r *Router) Cache(base string) *Cache {
	return r.caches[base]
}

// RoundTrip implements http.RoundTripper.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only GET traffic is cacheable; everything else goes straight out.
	if req.Method != http.MethodGet {
		return r.base.RoundTrip(req)
	}

	matched := r.classify(req)
	switch matched.strategy {
	case StrategyCacheFirst:
		return r.cacheFirst(req, r.caches[matched.cacheBase])
	case StrategyNetworkFirst:
		return r.networkFirst(req, r.caches[matched.cacheBase], matched.class == "navigation")
	case StrategyStaleWhileRevalidate:
		return r.staleWhileRevalidate(req, r.caches[matched.cacheBase])
	case StrategyPassThrough:
		return r.passThrough(req, r.caches[matched.cacheBase])
	default:
		return r.base.RoundTrip(req)
	}
}

func (r *Router) classify(req *http.Request) rule {
	for _, candidate := range r.rules {
		if candidate.match(req) {
			return candidate
		}
	}
	// The table always ends with a catch-all bypass rule.
	return r.rules[len(r.rules)-1]
}

// cacheFirst returns the cached entry when present without touching
// the network; otherwise it fetches, stores, and returns.
func (r *Router) cacheFirst(req *http.Request, cache *Cache) (*http.Response, error) {
	if entry := r.lookup(req, cache); entry != nil {
		return entry.Response(req), nil
	}

	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	return r.storeResponse(req, cache, resp)
}

// networkFirst attempts the network within the configured timeout; on
// success it stores and returns, on failure it serves the cached entry,
// the cached app shell for navigations, or a synthetic error response.
func (r *Router) networkFirst(req *http.Request, cache *Cache, navigation bool) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), r.cfg.NetworkTimeout)
	resp, err := r.base.RoundTrip(req.Clone(ctx))
	if err == nil {
		// The body may outlive the timeout context; buffer it now so
		// cancel cannot interrupt the caller's read.
		resp, err = r.storeResponse(req, cache, resp)
		cancel()
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	cancel()

	r.logger.Debug("network attempt failed, trying cache",
		"url", req.URL.String(),
		"error", err,
	)

	if entry := r.lookup(req, cache); entry != nil {
		return entry.Response(req), nil
	}

	if navigation {
		if entry := r.lookupShellFallback(req); entry != nil {
			return entry.Response(req), nil
		}
	}

	return syntheticErrorResponse(req), nil
}

// staleWhileRevalidate serves the cached entry immediately and spawns a
// detached background refresh whose outcome only affects the next read;
// on a miss the fetch happens synchronously.
func (r *Router) staleWhileRevalidate(req *http.Request, cache *Cache) (*http.Response, error) {
	if entry := r.lookup(req, cache); entry != nil {
		go r.revalidate(req, cache)
		return entry.Response(req), nil
	}

	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	return r.storeResponse(req, cache, resp)
}

// passThrough forwards to the network and opportunistically caches
// successful responses.
func (r *Router) passThrough(req *http.Request, cache *Cache) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		if entry := r.lookup(req, cache); entry != nil {
			return entry.Response(req), nil
		}
		return nil, err
	}
	return r.storeResponse(req, cache, resp)
}

// revalidate re-fetches in the background. Failures are logged and
// discarded; they never surface to the original caller.
func (r *Router) revalidate(req *http.Request, cache *Cache) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), 30*time.Second)
	defer cancel()

	resp, err := r.base.RoundTrip(req.Clone(ctx))
	if err != nil {
		r.logger.Debug("background revalidation failed", "url", req.URL.String(), "error", err)
		return
	}
	defer resp.Body.Close()

	if !cacheable(resp) {
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.Debug("background revalidation read failed", "url", req.URL.String(), "error", err)
		return
	}

	if err := cache.Store(newEntry(req, resp.StatusCode, resp.Header, body)); err != nil {
		r.logger.Warn("background revalidation store failed", "url", req.URL.String(), "error", err)
	}
}

// lookup is a nil-safe cache read that logs and swallows read errors.
func (r *Router) lookup(req *http.Request, cache *Cache) *Entry {
	if cache == nil {
		return nil
	}
	entry, err := cache.Lookup(CacheKey(req.URL.String()))
	if err != nil {
		r.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", err)
		return nil
	}
	return entry
}

// lookupShellFallback serves the cached app-shell index for failed
// navigations.
func (r *Router) lookupShellFallback(req *http.Request) *Entry {
	shell := r.shellIndexURL()
	if shell == "" {
		return nil
	}

	pages := r.caches[cachePages]
	entry, err := pages.Lookup(CacheKey(shell))
	if err != nil || entry == nil {
		return nil
	}
	return entry
}

func (r *Router) shellIndexURL() string {
	for _, rawURL := range r.cfg.AppShell {
		if strings.HasSuffix(rawURL, "/index.html") || strings.HasSuffix(rawURL, "/") {
			return rawURL
		}
	}
	if len(r.cfg.AppShell) > 0 {
		return r.cfg.AppShell[0]
	}
	return ""
}

// storeResponse buffers the response body, caches it when cacheable,
// and hands back a response whose body is replayed from the buffer.
func (r *Router) storeResponse(req *http.Request, cache *Cache, resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if cache != nil && cacheable(resp) {
		if err := cache.Store(newEntry(req, resp.StatusCode, resp.Header, body)); err != nil {
			r.logger.Warn("failed to cache response", "url", req.URL.String(), "error", err)
		}
	}

	return resp, nil
}

// cacheable limits storage to successful responses.
func cacheable(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// syntheticErrorResponse is what the caller sees when the network is
// down and nothing cached can answer.
func syntheticErrorResponse(req *http.Request) *http.Response {
	body := []byte("network error happened")

	header := make(http.Header)
	header.Set("Content-Type", "text/plain")

	return &http.Response{
		StatusCode:    http.StatusRequestTimeout,
		Status:        fmt.Sprintf("%d %s", http.StatusRequestTimeout, http.StatusText(http.StatusRequestTimeout)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
