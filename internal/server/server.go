package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	eventbus "github.com/hanpama/gqlprune/internal/eventbus"
	events "github.com/hanpama/gqlprune/internal/events"
	jtd "github.com/hanpama/gqlprune/internal/jtd"
	language "github.com/hanpama/gqlprune/internal/language"
	prune "github.com/hanpama/gqlprune/internal/prune"
	reqid "github.com/hanpama/gqlprune/internal/reqid"
)

// Handler is an http.Handler that prunes GraphQL requests against a schema.
// Without an upstream it answers with the pruned request; with one it
// forwards the pruned request and relays the upstream response.
type Handler struct {
	root     *jtd.Root
	opt      Options
	upstream string
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Upstream is the GraphQL endpoint pruned requests are forwarded to.
	// Empty means requests are answered with their pruned form.
	Upstream string

	// ForwardHeaders lists HTTP headers copied onto upstream requests.
	// Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	// Client performs upstream requests. Defaults to http.DefaultClient.
	Client *http.Client
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithUpstream(u string) Option { return func(o *Options) { o.Upstream = u } }
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a pruning handler for root.
func New(root *jtd.Root, opts ...Option) (*Handler, error) {
	if root == nil {
		return nil, errors.New("server: nil schema")
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	if op.Upstream != "" {
		u, err := url.Parse(op.Upstream)
		if err != nil {
			return nil, fmt.Errorf("server: upstream: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("server: upstream %q must be an http(s) URL", op.Upstream)
		}
	}
	if op.Client == nil {
		op.Client = http.DefaultClient
	}
	return &Handler{root: root, opt: op, upstream: op.Upstream}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.FromRequest(r.WithContext(ctx))
	w.Header().Set(reqid.Header, strconv.FormatInt(rid, 10))
	status := http.StatusOK
	requests := 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			RequestID: rid,
			Request:   r,
			Requests:  requests,
			Status:    status,
			Duration:  time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(&language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// Batched requests
		requests = len(batch)
		out := make([]any, len(batch))
		for i := range batch {
			out[i] = h.handleOne(ctx, r.Header, batch[i]).payload()
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	requests = 1
	res := h.handleOne(ctx, r.Header, req)
	if res.upstream != nil {
		status = res.upstream.status
		if res.upstream.contentType != "" {
			w.Header().Set("Content-Type", res.upstream.contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(res.upstream.body)
		return
	}
	status = res.status
	writeJSON(w, status, res.payload(), h.opt.Pretty)
}

// result is the outcome for one request of a possibly batched call.
type result struct {
	status   int
	body     any
	upstream *upstreamResponse
}

func (r result) payload() any {
	if r.upstream != nil {
		if json.Valid(r.upstream.body) {
			return json.RawMessage(r.upstream.body)
		}
		return errorResponse(&language.Error{
			Message: fmt.Sprintf("upstream returned status %d with a non-JSON body", r.upstream.status),
		})
	}
	return r.body
}

func (h *Handler) handleOne(ctx context.Context, in http.Header, req GraphQLRequest) result {
	cleaned, _, gerr := Clean(ctx, h.root, req)
	if gerr != nil {
		return result{status: http.StatusOK, body: errorResponse(gerr)}
	}
	if h.upstream == "" {
		return result{status: http.StatusOK, body: cleaned}
	}
	up, err := h.forward(ctx, in, cleaned)
	if err != nil {
		return result{status: http.StatusBadGateway, body: errorResponse(&language.Error{Message: "upstream request failed: " + err.Error()})}
	}
	return result{upstream: up}
}

// ------------------ Pruning ------------------

// Clean parses req.Query, prunes it together with req.Variables against root
// and returns the request to send upstream. The report of what was removed is
// attached to the returned request's extensions under "pruned".
func Clean(ctx context.Context, root *jtd.Root, req GraphQLRequest) (GraphQLRequest, *prune.Meta, *language.Error) {
	start := time.Now()
	eventbus.Publish(ctx, events.CleanStart{Query: req.Query, OperationName: req.OperationName})
	out, meta, gerr := clean(root, req)
	fin := events.CleanFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		Duration:      time.Since(start),
	}
	if meta != nil {
		fin.Operations = len(meta.Operations)
		fin.Removed = meta.Removed.Count()
	}
	if gerr != nil {
		fin.Err = gerr
	}
	eventbus.Publish(ctx, fin)
	return out, meta, gerr
}

func clean(root *jtd.Root, req GraphQLRequest) (GraphQLRequest, *prune.Meta, *language.Error) {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		var ge *language.Error
		if errors.As(err, &ge) {
			return GraphQLRequest{}, nil, ge
		}
		return GraphQLRequest{}, nil, &language.Error{Message: err.Error()}
	}

	pr := prune.CleanRequest(doc, req.Variables, root)
	if len(pr.Query.Operations) == 0 {
		return GraphQLRequest{}, pr.Meta, &language.Error{Message: "no operation is left after pruning"}
	}
	if req.OperationName != "" && pr.Query.Operations.ForName(req.OperationName) == nil {
		return GraphQLRequest{}, pr.Meta, &language.Error{
			Message: fmt.Sprintf("operation %q was removed by pruning", req.OperationName),
		}
	}

	out := GraphQLRequest{
		Query:         language.PrintCompact(pr.Query),
		OperationName: req.OperationName,
		Variables:     pr.Variables,
		Extensions:    map[string]any{},
	}
	for k, v := range req.Extensions {
		out.Extensions[k] = v
	}
	out.Extensions["pruned"] = pr.Meta.Removed
	return out, pr.Meta, nil
}

// ------------------ Upstream ------------------

type upstreamResponse struct {
	status      int
	contentType string
	body        []byte
}

func (h *Handler) forward(ctx context.Context, in http.Header, req GraphQLRequest) (*upstreamResponse, error) {
	// the report is for our caller, not for the upstream server
	fwd := req
	fwd.Extensions = nil
	for k, v := range req.Extensions {
		if k == "pruned" {
			continue
		}
		if fwd.Extensions == nil {
			fwd.Extensions = map[string]any{}
		}
		fwd.Extensions[k] = v
	}
	body, err := json.Marshal(fwd)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	eventbus.Publish(ctx, events.UpstreamStart{URL: h.upstream})
	up, err := h.roundTrip(ctx, in, body)
	fin := events.UpstreamFinish{URL: h.upstream, Err: err, Duration: time.Since(start)}
	if up != nil {
		fin.Status = up.status
	}
	eventbus.Publish(ctx, fin)
	return up, err
}

func (h *Handler) roundTrip(ctx context.Context, in http.Header, body []byte) (*upstreamResponse, error) {
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, h.upstream, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	// Map configured headers onto the upstream request
	if len(h.opt.ForwardHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.ForwardHeaders))
		for _, hdr := range h.opt.ForwardHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range in {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				hr.Header[k] = append([]string(nil), v...)
			}
		}
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	reqid.Inject(ctx, hr.Header)

	resp, err := h.opt.Client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	return &upstreamResponse{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// DecodeJSON decodes a single JSON value from data. Numbers are kept as
// json.Number so that forwarding never rewrites them.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		var vars map[string]any
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := DecodeJSON([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		var ext map[string]any
		if v := r.URL.Query().Get("extensions"); v != "" {
			if err := DecodeJSON([]byte(v), &ext); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'extensions' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op, Extensions: ext}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}

		// Try array (batch)
		body = bytes.TrimSpace(body)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := DecodeJSON(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := DecodeJSON(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

func errorResponse(err *language.Error) specResult {
	se := specError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
	}
	return specResult{Errors: []specError{se}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
