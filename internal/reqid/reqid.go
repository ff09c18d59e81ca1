package reqid

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
)

// Header carries the request ID to upstream servers.
const Header = "X-Request-Id"

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	return WithID(parent, rand.Int64())
}

// WithID returns a copy of parent carrying id.
func WithID(parent context.Context, id int64) (context.Context, int64) {
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(key{})
	id, ok := v.(int64)
	return id, ok
}

// FromRequest reuses a numeric ID sent by the client, or generates one.
func FromRequest(r *http.Request) (context.Context, int64) {
	if id, err := strconv.ParseInt(r.Header.Get(Header), 10, 64); err == nil && id > 0 {
		return WithID(r.Context(), id)
	}
	return NewContext(r.Context())
}

// Inject sets the request ID of ctx on h, if there is one.
func Inject(ctx context.Context, h http.Header) {
	if id, ok := FromContext(ctx); ok {
		h.Set(Header, strconv.FormatInt(id, 10))
	}
}
