package etna

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Success statuses span 200-209 to cover both 200 OK and 201 Created
// style responses.
const (
	successStatusMin = 200
	successStatusMax = 209
)

// maxErrorBodySize limits how much of an error response body is kept
// for message extraction. 16KB is plenty for any server diagnostic
// while bounding memory on misbehaving nodes.
const maxErrorBodySize = 16 * 1024

// httpBackend is the reference Backend: JSON over HTTP with optional
// gzip response compression and rich status classification (404 maps
// to Missing, 409 to Conflict).
type httpBackend struct {
	mu       sync.Mutex
	client   *http.Client // lazily built, dropped on config change
	override *http.Client // caller-supplied, used as-is when set
	timeout  time.Duration
	compress bool
	codec    Codec
}

func newHTTPBackend(cfg BackendConfig) (Backend, error) {
	codec := cfg.Codec
	if codec == nil {
		codec = defaultCodec
	}
	return &httpBackend{
		override: cfg.HTTPClient,
		timeout:  cfg.Timeout,
		compress: cfg.Compression,
		codec:    codec,
	}, nil
}

// httpClient returns the cached client, building it on first use. The
// cache is invalidated by SetTimeout and SetCompression so a stale
// configuration never leaks into a live connection pool.
func (b *httpBackend) httpClient() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		if b.override != nil {
			b.client = b.override
		} else {
			b.client = &http.Client{
				Timeout: b.timeout,
				Transport: &http.Transport{
					// gzip is negotiated explicitly below so the raw
					// Content-Encoding header stays visible.
					DisableCompression: true,
				},
			}
		}
	}
	return b.client
}

func (b *httpBackend) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
	b.client = nil
}

func (b *httpBackend) SetCompression(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compress = enabled
	b.client = nil
}

func (b *httpBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.CloseIdleConnections()
		b.client = nil
	}
	return nil
}

func (b *httpBackend) Send(ctx context.Context, node string, req *Request) ([]byte, error) {
	u, err := req.target(node)
	if err != nil {
		return nil, err
	}
	payload, err := req.bodyBytes(b.codec)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, newError(KindParam, "cannot build HTTP request", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", "etna-go/"+Version)

	b.mu.Lock()
	compress := b.compress
	b.mu.Unlock()
	if compress {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := b.httpClient().Do(httpReq)
	if err != nil {
		return nil, classifyNetError(node, err)
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &Error{
				Kind:    KindRequest,
				Message: "cannot decompress response body",
				Node:    node,
				Cause:   err,
			}
		}
		defer gz.Close()
		reader = gz
	}

	if resp.StatusCode < successStatusMin || resp.StatusCode > successStatusMax {
		data, _ := io.ReadAll(io.LimitReader(reader, maxErrorBodySize))
		return nil, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Message:    resp.Status,
			Node:       node,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, classifyNetError(node, err)
	}
	return data, nil
}

// classifyStatus maps a non-success HTTP status to an error kind.
func classifyStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindMissing
	case http.StatusConflict:
		return KindConflict
	default:
		return KindRequest
	}
}

// classifyNetError separates timeouts from connection-level failures.
// Everything that is not a timeout (refused, reset, no route, dropped
// mid-read) counts as a connection failure and is eligible for
// failover.
func classifyNetError(node string, err error) *Error {
	kind := KindConnection
	message := "cannot connect to node"

	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind, message = KindTimeout, "request timed out"
	case errors.As(err, &ne) && ne.Timeout():
		kind, message = KindTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		kind, message = KindTimeout, "request canceled"
	case errors.Is(err, io.ErrUnexpectedEOF):
		message = "connection dropped mid-response"
	}

	return &Error{
		Kind:    kind,
		Message: message,
		Node:    node,
		Cause:   err,
	}
}
