package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	eventbus "github.com/hanpama/gqlprune/internal/eventbus"
	events "github.com/hanpama/gqlprune/internal/events"
	jtd "github.com/hanpama/gqlprune/internal/jtd"
	language "github.com/hanpama/gqlprune/internal/language"
	reqid "github.com/hanpama/gqlprune/internal/reqid"
	"github.com/stretchr/testify/require"
)

const testQuery = `query testQuery($arg1: String!, $optional: String) {
	req: queryTest1(arg1: $arg1) { t1rfield1 nope }
	optional: queryTest3(version: $optional) { t1rfield1 }
}`

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	root, err := jtd.Load(filepath.Join("testdata", "demo.min.json"))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	h, err := New(root, opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeRequest(t *testing.T, data []byte) GraphQLRequest {
	t.Helper()
	var out GraphQLRequest
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func requireSameQuery(t *testing.T, want, got string) {
	t.Helper()
	w, err := language.ParseQuery(want)
	require.NoError(t, err)
	g, err := language.ParseQuery(got)
	require.NoError(t, err)
	require.Equal(t, language.Print(w), language.Print(g))
}

func TestCleanMode(t *testing.T) {
	h := newTestHandler(t)
	w := postJSON(t, h, map[string]any{
		"query":         testQuery,
		"operationName": "testQuery",
		"variables":     map[string]any{"arg1": "Howdy", "optional": "x"},
		"extensions":    map[string]any{"trace": true},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(reqid.Header))

	got := decodeRequest(t, w.Body.Bytes())
	requireSameQuery(t, `query testQuery($arg1: String!) {
		req: queryTest1(arg1: $arg1) { t1rfield1 }
		optional: queryTest3 { t1rfield1 }
	}`, got.Query)
	require.Equal(t, "testQuery", got.OperationName)
	require.Equal(t, map[string]any{"arg1": "Howdy"}, got.Variables)
	require.Equal(t, true, got.Extensions["trace"])
	require.Equal(t, map[string]any{
		"fields":         []any{"Query.queryTest1.nope"},
		"arguments":      []any{"Query.queryTest3[version]"},
		"variables":      []any{"testQuery.$optional"},
		"variableValues": []any{"optional"},
	}, got.Extensions["pruned"])
}

func TestCleanModeGET(t *testing.T) {
	h := newTestHandler(t)
	q := url.Values{}
	q.Set("query", `{ queryTest3 { t1rfield2 gone } }`)
	req := httptest.NewRequest("GET", "/graphql?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeRequest(t, w.Body.Bytes())
	requireSameQuery(t, `{ queryTest3 { t1rfield2 } }`, got.Query)
	require.Nil(t, got.Variables)
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t)
	w := postJSON(t, h, []map[string]any{
		{"query": `{ queryTest3 { t1rfield1 } }`},
		{"query": `{ unknown { a } }`},
		{"query": `{ broken`},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 3)
	requireSameQuery(t, `{ queryTest3 { t1rfield1 } }`, out[0]["query"].(string))
	require.Contains(t, out[1], "errors")
	require.Contains(t, out[2], "errors")
}

func TestRemovedOperationName(t *testing.T) {
	h := newTestHandler(t)
	w := postJSON(t, h, map[string]any{
		"query":         `query A { queryTest3 { t1rfield1 } } query B { nope { x } }`,
		"operationName": "B",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var out specResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0].Message, `"B"`)
}

func TestParseErrorLocations(t *testing.T) {
	h := newTestHandler(t)
	w := postJSON(t, h, map[string]any{"query": "{\n  queryTest3 {"})
	var out specResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Errors, 1)
	require.NotEmpty(t, out.Errors[0].Locations)
}

func TestForwardMode(t *testing.T) {
	var gotBody GraphQLRequest
	var gotHeader http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{"req":{"t1rfield1":"ok"}}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, WithUpstream(upstream.URL), WithForwardHeaders("Authorization"))
	data, _ := json.Marshal(map[string]any{
		"query":     testQuery,
		"variables": map[string]any{"arg1": "Howdy", "optional": "x"},
	})
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Other", "nope")
	req.Header.Set(reqid.Header, "7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"data":{"req":{"t1rfield1":"ok"}}}`, w.Body.String())

	requireSameQuery(t, `query testQuery($arg1: String!) {
		req: queryTest1(arg1: $arg1) { t1rfield1 }
		optional: queryTest3 { t1rfield1 }
	}`, gotBody.Query)
	require.Equal(t, map[string]any{"arg1": "Howdy"}, gotBody.Variables)
	require.NotContains(t, gotBody.Extensions, "pruned")
	require.Equal(t, "Bearer abc", gotHeader.Get("Authorization"))
	require.Empty(t, gotHeader.Get("X-Other"))
	require.Equal(t, "7", gotHeader.Get(reqid.Header))
}

func TestForwardKeepsLargeIntegers(t *testing.T) {
	var raw []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer upstream.Close()

	body := `{
		"query": "query Q($in: [test1input1]) { queryTest2(arg2: $in) { t1rfield1 } }",
		"variables": {"in": [{"t1i1field3": 9007199254740993, "t1i1field4": 1.000000000000000001}]}
	}`
	h := newTestHandler(t, WithUpstream(upstream.URL))
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(raw), "9007199254740993")
	require.Contains(t, string(raw), "1.000000000000000001")

	// Clean mode echoes the same literal back.
	h = newTestHandler(t)
	req = httptest.NewRequest("POST", "/graphql", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "9007199254740993")
}

func TestDecodeJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, DecodeJSON([]byte(`{"n": 9007199254740993}`), &v))
	require.Equal(t, json.Number("9007199254740993"), v["n"])

	require.Error(t, DecodeJSON([]byte(`{"n": 1} {}`), &v))
	require.Error(t, DecodeJSON([]byte(`{"n":`), &v))
}

func TestForwardBatch(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"n":` + strconv.Itoa(calls) + `}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, WithUpstream(upstream.URL))
	w := postJSON(t, h, []map[string]any{
		{"query": `{ queryTest3 { t1rfield1 } }`},
		{"query": `{ nope }`},
		{"query": `{ queryTest3 { t1rfield2 } }`},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, calls)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, map[string]any{"n": float64(1)}, out[0]["data"])
	require.Contains(t, out[1], "errors")
	require.Equal(t, map[string]any{"n": float64(2)}, out[2]["data"])
}

func TestUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	h := newTestHandler(t, WithUpstream(addr))
	w := postJSON(t, h, map[string]any{"query": `{ queryTest3 { t1rfield1 } }`})
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestNewValidatesUpstream(t *testing.T) {
	root := &jtd.Root{}
	_, err := New(root, WithUpstream("ftp://example.com"))
	require.Error(t, err)
	_, err = New(nil)
	require.Error(t, err)
}

func TestEvents(t *testing.T) {
	b := eventbus.New()
	eventbus.Use(b)
	t.Cleanup(func() { eventbus.Use(nil) })

	var seen []string
	var removed int
	var startID, finishID int64
	var requests int
	eventbus.On(b, func(_ context.Context, e events.HTTPStart) {
		seen = append(seen, "http.start")
		startID = e.RequestID
	})
	eventbus.On(b, func(context.Context, events.CleanStart) { seen = append(seen, "clean.start") })
	eventbus.On(b, func(_ context.Context, e events.CleanFinish) {
		seen = append(seen, "clean.finish")
		removed = e.Removed
	})
	eventbus.On(b, func(_ context.Context, e events.HTTPFinish) {
		seen = append(seen, "http.finish:"+strconv.Itoa(e.Status))
		finishID = e.RequestID
		requests = e.Requests
	})

	h := newTestHandler(t)
	w := postJSON(t, h, map[string]any{"query": testQuery, "variables": map[string]any{"optional": 1}})
	require.Equal(t, []string{"http.start", "clean.start", "clean.finish", "http.finish:200"}, seen)
	require.Equal(t, 4, removed)
	require.Equal(t, w.Header().Get(reqid.Header), strconv.FormatInt(startID, 10))
	require.Equal(t, startID, finishID)
	require.Equal(t, 1, requests)

	// a client supplied id is carried by both events
	data, _ := json.Marshal([]map[string]any{{"query": "{ queryTest3 { t1rfield1 } }"}, {"query": "{ __typename }"}})
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(reqid.Header, "42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(42), startID)
	require.Equal(t, int64(42), finishID)
	require.Equal(t, 2, requests)
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ queryTest3 { t1rfield1 } }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(10))

	body := bytes.NewBufferString(`{"query":"1234567890"}`)
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t)
	tests := []struct {
		name   string
		method string
		ct     string
		body   string
		status int
	}{
		{"method", "PUT", "application/json", `{}`, http.StatusMethodNotAllowed},
		{"content type", "POST", "text/plain", `{ a }`, http.StatusBadRequest},
		{"invalid json", "POST", "application/json", `{`, http.StatusBadRequest},
		{"missing query", "POST", "application/json", `{"variables":{}}`, http.StatusBadRequest},
		{"empty batch", "POST", "application/json", `[]`, http.StatusBadRequest},
		{"missing GET query", "GET", "", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", bytes.NewBufferString(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code)
		})
	}
}
