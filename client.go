package etna

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRequests = 10_000
	defaultNode        = "127.0.0.1:9200"

	// nodesInfoPath is the membership query: a mapping from node ID to
	// node metadata including the bound http_address.
	nodesInfoPath = "/_nodes/http"

	// emptySuccessBody stands in for 204-style responses so callers
	// always get a decodable body.
	emptySuccessBody = `{"ok":true}`
)

// Client dispatches logical requests against the cluster: it picks a
// node from the server pool, delegates to the backend, applies the
// failover policy, and packages the result or a terminal *Error.
type Client struct {
	pool    *serverPool
	backend Backend
	codec   Codec
	trace   TraceSink
	logger  *slog.Logger
	debug   bool
}

// NewClient creates a client for the given seed nodes (host:port).
// With no seeds it assumes a local node on port 9200.
func NewClient(servers []string, opts ...Option) (*Client, error) {
	cfg := config{
		backend:     DefaultBackend,
		timeout:     defaultTimeout,
		maxRequests: defaultMaxRequests,
		codec:       defaultCodec,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	seeds := append([]string(nil), servers...)
	if len(seeds) == 0 {
		seeds = []string{defaultNode}
	}

	backend, err := newBackend(cfg.backend, BackendConfig{
		Timeout:     cfg.timeout,
		Compression: cfg.compression,
		HTTPClient:  cfg.httpClient,
		Codec:       cfg.codec,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		backend: backend,
		codec:   cfg.codec,
		trace:   cfg.trace,
		logger:  cfg.logger,
		debug:   cfg.debug,
	}
	c.pool = newServerPool(seeds, cfg.maxRequests, cfg.noRefresh, c.probeNodes, cfg.logger)
	return c, nil
}

// Perform executes one logical request and returns the raw response
// body. Empty success responses come back as a canonical {"ok":true}
// body. Most callers want [Client.Do] instead.
func (c *Client) Perform(ctx context.Context, req *Request) ([]byte, error) {
	return c.perform(ctx, req, "")
}

// Do executes one logical request and decodes the response body into
// out using the client's codec. A nil out discards the body. When the
// request sets IgnoreMissing and the cluster reports a not-found, Do
// returns nil without touching out.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	body, err := c.Perform(ctx, req)
	if err != nil || out == nil || body == nil {
		return err
	}
	if err := c.codec.Decode(body, out); err != nil {
		return newError(KindInternal, "cannot decode response body", err).
			with("body", string(body))
	}
	return nil
}

func (c *Client) perform(ctx context.Context, req *Request, pinned string) ([]byte, error) {
	if req == nil {
		return nil, newError(KindParam, "request is required", nil)
	}
	r := req.normalized()

	// Each top-level request gets a fresh failover budget across all
	// known nodes. Pinned (probe) calls leave the budget alone.
	if pinned == "" {
		c.pool.resetFailures()
	}

	tried := make(map[string]bool)
	for {
		node := pinned
		if node == "" {
			var err error
			node, err = c.pool.next(ctx, tried)
			if err != nil {
				return nil, err
			}
		}

		c.traceRequest(node, r)
		start := time.Now()
		body, err := c.backend.Send(ctx, node, r)
		took := time.Since(start)
		c.traceResponse(node, body, took, err)
		if c.debug {
			c.logger.Debug("dispatch", "node", node, "request", r.describe(),
				"took", took, "error", err)
		}

		if err == nil {
			if len(body) == 0 {
				body = []byte(emptySuccessBody)
			}
			return body, nil
		}

		if pinned == "" && IsConnection(err) {
			tried[node] = true
			c.pool.fail(node)
			c.logger.Warn("node unreachable, failing over", "node", node)
			if c.pool.hasUntried(tried) {
				continue
			}
		}

		return nil, c.finalizeError(err, r)
	}
}

// finalizeError is the terminal classification step: unclassified raw
// failures become Request errors carrying the descriptor, Missing is
// swallowed when the request opted in, and Request-class errors are
// enriched with the server's own diagnostic text.
func (c *Client) finalizeError(err error, req *Request) error {
	var e *Error
	if !errors.As(err, &e) {
		return newError(KindRequest, "request failed", err).
			with("request", req.describe())
	}
	if e.Kind == KindMissing && req.IgnoreMissing {
		return nil
	}
	c.enrichError(e)
	return e
}

// enrichError replaces a generic status message with the
// server-supplied one when the raw body contains it, then drops the
// now-redundant body.
func (c *Client) enrichError(e *Error) {
	if len(e.Body) == 0 {
		return
	}
	var payload struct {
		Error  any `json:"error"`
		Status int `json:"status"`
	}
	if c.codec.Decode(e.Body, &payload) != nil {
		return
	}
	msg := serverMessage(payload.Error)
	if msg == "" {
		return
	}
	e.Message = msg
	e.Body = nil
}

// serverMessage digs the diagnostic text out of the two error body
// shapes clusters emit: a plain string, or an object with
// reason/type fields.
func serverMessage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["reason"].(string); ok && s != "" {
			return s
		}
		if s, ok := t["type"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// probeNodes is the pool's membership query. It pins the probed node
// so the dispatch cannot recurse back into node selection, parses the
// bound http_address of every member, and skips nodes running an
// unsupported engine version.
func (c *Client) probeNodes(ctx context.Context, node string) ([]string, error) {
	body, err := c.perform(ctx, &Request{Method: "GET", Path: nodesInfoPath}, node)
	if err != nil {
		return nil, err
	}
	var info NodesInfo
	if err := c.codec.Decode(body, &info); err != nil {
		return nil, newError(KindInternal, "cannot decode nodes info", err)
	}

	var servers []string
	for id, n := range info.Nodes {
		addr := extractAddress(n.HTTPAddress)
		if addr == "" {
			continue
		}
		if n.Version != "" && !SupportedClusterVersion(n.Version) {
			c.logger.Warn("skipping node with unsupported version",
				"node", id, "version", n.Version)
			continue
		}
		servers = append(servers, addr)
	}
	sort.Strings(servers)
	return servers, nil
}

// extractAddress pulls host:port out of a bound-address field. Handles
// the bare "host:port" form as well as the bracketed
// "inet[hostname/1.2.3.4:9200]" form of older clusters.
func extractAddress(s string) string {
	s = strings.TrimPrefix(s, "inet[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if !strings.Contains(s, ":") {
		return ""
	}
	return s
}

// RefreshServers forces a membership refresh outside the periodic
// schedule.
func (c *Client) RefreshServers(ctx context.Context) error {
	return c.pool.refresh(ctx)
}

// RemoveServer evicts a node from the live pool and counts the
// failure, without waiting for a refresh to replace the list.
func (c *Client) RemoveServer(addr string) {
	c.pool.remove(addr)
}

// Servers returns a snapshot of the live node pool.
func (c *Client) Servers() []string {
	return c.pool.servers()
}

// SeedServers returns the immutable seed node list.
func (c *Client) SeedServers() []string {
	return c.pool.seeds()
}

// MaxRequests returns the refresh threshold.
func (c *Client) MaxRequests() int {
	return c.pool.getMaxRequests()
}

// SetMaxRequests changes how many dispatches happen between membership
// refreshes. 0 disables periodic refresh.
func (c *Client) SetMaxRequests(n int) {
	c.pool.setMaxRequests(n)
}

// SetTimeout changes the per-call time budget. The backend drops its
// cached connection pool so the next call uses the new budget.
func (c *Client) SetTimeout(d time.Duration) {
	c.backend.SetTimeout(d)
}

// SetCompression toggles response compression and rebuilds the
// backend's cached connections.
func (c *Client) SetCompression(enabled bool) {
	c.backend.SetCompression(enabled)
}

// Close releases the backend's pooled connections.
func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) traceRequest(node string, r *Request) {
	if c.trace == nil {
		return
	}
	u, err := r.target(node)
	if err != nil {
		return
	}
	body, _ := r.bodyBytes(c.codec)
	c.trace.TraceRequest(node, r.Method, u, body)
}

func (c *Client) traceResponse(node string, body []byte, took time.Duration, err error) {
	if c.trace == nil {
		return
	}
	c.trace.TraceResponse(node, body, took, err)
}
