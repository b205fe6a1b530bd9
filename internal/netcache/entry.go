package netcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// EntryMetadata is the JSON metadata stored alongside a cached body.
type EntryMetadata struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	StoredAt time.Time         `json:"stored_at"`
	CacheKey string            `json:"cache_key"`
}

// Entry is one cached response: metadata plus raw body bytes.
type Entry struct {
	Metadata EntryMetadata
	Body     []byte
}

// Response rebuilds a replayable http.Response for the given request.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := make(http.Header, len(e.Metadata.Headers))
	for key, value := range e.Metadata.Headers {
		header.Set(key, value)
	}
	header.Set("X-Cache", "HIT")

	return &http.Response{
		StatusCode:    e.Metadata.Status,
		Status:        fmt.Sprintf("%d %s", e.Metadata.Status, http.StatusText(e.Metadata.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Metadata.StoredAt)
}

func newEntry(req *http.Request, status int, header http.Header, body []byte) *Entry {
	return &Entry{
		Metadata: EntryMetadata{
			URL:      req.URL.String(),
			Method:   req.Method,
			Status:   status,
			Headers:  flattenHeaders(header),
			StoredAt: time.Now().UTC(),
			CacheKey: CacheKey(req.URL.String()),
		},
		Body: body,
	}
}

func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return result
}

const keyHashLength = 16

// CacheKey derives a deterministic, filesystem-safe key for a URL:
// a sha256 prefix of the normalized URL. Only GET responses are
// cached, so the method is not part of the key.
func CacheKey(rawURL string) string {
	hash := sha256.Sum256([]byte(normalizeURL(rawURL)))
	return hex.EncodeToString(hash[:])[:keyHashLength]
}

// normalizeURL lowercases the host and sorts query parameters so
// equivalent URLs share one cache entry.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Host = strings.ToLower(parsed.Host)

	query := parsed.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sorted strings.Builder
	for i, k := range keys {
		if i > 0 {
			sorted.WriteByte('&')
		}
		sorted.WriteString(url.QueryEscape(k))
		sorted.WriteByte('=')
		sorted.WriteString(url.QueryEscape(query.Get(k)))
	}

	parsed.RawQuery = sorted.String()
	return parsed.String()
}
