package domain

// Source identifies where a successful read was served from, so callers
// can surface an offline indicator when data is stale-cached.
type Source string

const (
	SourceAPI   Source = "api"
	SourceLocal Source = "indexeddb"
)

// Result is the envelope returned by every coordinator operation. Source
// is mandatory on successful reads and empty only on errors and pure
// writes; no field is ever omitted silently.
type Result[T any] struct {
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
	Source  Source `json:"source,omitempty"`
}

// Ok builds a successful read result tagged with its provenance.
func Ok[T any](data T, source Source) Result[T] {
	return Result[T]{Data: data, Source: source}
}

// Fail builds an error result. The zero Data value is retained so JSON
// consumers see a stable shape.
func Fail[T any](message string) Result[T] {
	return Result[T]{Error: true, Message: message}
}
