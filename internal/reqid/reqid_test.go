package reqid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %d from context, got %d ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(Header, "42")
	ctx, id := FromRequest(r)
	if id != 42 {
		t.Fatalf("expected client id 42, got %d", id)
	}

	h := http.Header{}
	Inject(ctx, h)
	if got := h.Get(Header); got != "42" {
		t.Fatalf("expected header 42, got %q", got)
	}

	r.Header.Set(Header, "not-a-number")
	if _, id := FromRequest(r); id == 42 {
		t.Fatalf("expected a fresh id")
	}

	h = http.Header{}
	Inject(context.Background(), h)
	if h.Get(Header) != "" {
		t.Fatalf("unexpected header without id")
	}
}
