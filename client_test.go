package etna

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustEncode encodes v as JSON and writes it to w. Panics on error -
// safe in tests since errors indicate test bugs.
func mustEncode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic("failed to encode response: " + err.Error())
	}
}

// hostPort strips the scheme from an httptest server URL, since the
// transport addresses nodes as host:port.
func hostPort(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

// deadAddr returns a loopback address that refuses connections.
func deadAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// nodesInfoHandler answers the membership query with the given
// http_address values.
func nodesInfoHandler(addrs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes := make(map[string]any, len(addrs))
		for i, addr := range addrs {
			nodes[string(rune('a'+i))] = map[string]any{
				"name":         "node-" + addr,
				"version":      "8.4.0",
				"http_address": addr,
			}
		}
		mustEncode(w, map[string]any{"cluster_name": "test", "nodes": nodes})
	}
}

func TestPerform_Success(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		mustEncode(w, map[string]any{"pong": true})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	// Act
	body, err := client.Perform(context.Background(), &Request{Path: "/ping"})

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"pong":true}`, string(body))
}

// TestPerform_EmptyBody verifies that 204-style responses come back as
// the canonical empty-success body.
func TestPerform_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	body, err := client.Perform(context.Background(), &Request{Path: "/"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

// TestPerform_Failover covers the seed pool scenario: node "a" refuses
// connections, "b" answers. The request succeeds, "a" is evicted from
// the live pool in noRefresh mode, and only one data call reaches "b".
func TestPerform_Failover(t *testing.T) {
	// Arrange
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mustEncode(w, map[string]any{"ok": true})
	}))
	defer srv.Close()

	dead := deadAddr(t)
	client, err := NewClient([]string{dead, hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	// Act
	body, err := client.Perform(context.Background(), &Request{Path: "/"})

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 1, hits.Load())
	assert.NotContains(t, client.Servers(), dead,
		"noRefresh mode must evict the unreachable node")
	assert.Contains(t, client.SeedServers(), dead,
		"the seed pool is immutable")
}

// TestPerform_AllNodesDown verifies that exhausting every node
// surfaces the last connection error rather than looping forever.
func TestPerform_AllNodesDown(t *testing.T) {
	client, err := NewClient([]string{deadAddr(t), deadAddr(t)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/"})
	require.Error(t, err)
	assert.True(t, IsConnection(err) || kindOf(err) == KindNoServers, "got %v", err)
}

// TestPerform_RefreshFromMembership verifies the full refresh path:
// the client probes /_nodes/http on first use and replaces the live
// pool with the advertised addresses.
func TestPerform_RefreshFromMembership(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == nodesInfoPath {
			nodesInfoHandler(hostPort(srv))(w, r)
			return
		}
		mustEncode(w, map[string]any{"ok": true})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{hostPort(srv)}, client.Servers())
}

// TestPerform_FailoverToSeedAfterRefresh covers the topology where a
// refresh installs a live pool of unreachable nodes while the seed
// itself stays up: after each advertised node fails once, the request
// falls through to the untried seed instead of re-dialing dead nodes.
func TestPerform_FailoverToSeedAfterRefresh(t *testing.T) {
	// Arrange
	membership := nodesInfoHandler(deadAddr(t), deadAddr(t))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == nodesInfoPath {
			membership(w, r)
			return
		}
		mustEncode(w, map[string]any{"ok": true})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)})
	require.NoError(t, err)
	defer client.Close()

	// Act
	body, err := client.Perform(context.Background(), &Request{Path: "/"})

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, 2, hits.Load(),
		"exactly one membership probe and one data dispatch should reach the seed")
}

// TestPerform_DeadMembershipBudget verifies the failover budget when
// the advertised nodes and the seed data path are all unreachable:
// every known node is dialed at most once and the surfaced error is
// the last connection failure, not an endless retry.
func TestPerform_DeadMembershipBudget(t *testing.T) {
	// Arrange
	membership := nodesInfoHandler(deadAddr(t), deadAddr(t))
	var probes, dispatches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == nodesInfoPath {
			probes.Add(1)
			membership(w, r)
			return
		}
		dispatches.Add(1)
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)})
	require.NoError(t, err)
	defer client.Close()

	// Act
	_, err = client.Perform(context.Background(), &Request{Path: "/"})

	// Assert
	require.Error(t, err)
	assert.True(t, IsConnection(err), "got %v", err)
	assert.EqualValues(t, 1, probes.Load(), "one membership probe")
	assert.EqualValues(t, 1, dispatches.Load(),
		"the seed's data path is dialed exactly once")
}

// TestPerform_RefreshSkipsOldNodes verifies the version gate: nodes
// below the minimum supported version never enter the pool.
func TestPerform_RefreshSkipsOldNodes(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == nodesInfoPath {
			mustEncode(w, map[string]any{
				"cluster_name": "test",
				"nodes": map[string]any{
					"new": map[string]any{"version": "8.4.0", "http_address": hostPort(srv)},
					"old": map[string]any{"version": "1.7.3", "http_address": "10.0.0.9:9200"},
				},
			})
			return
		}
		mustEncode(w, map[string]any{"ok": true})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{hostPort(srv)}, client.Servers())
}

func TestPerform_IgnoreMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		mustEncode(w, map[string]any{"found": false})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	// Without the opt-in the Missing error propagates.
	_, err = client.Perform(context.Background(), &Request{Path: "/posts/_doc/1"})
	assert.True(t, IsMissing(err), "got %v", err)

	// With it the result is empty and nil.
	body, err := client.Perform(context.Background(),
		&Request{Path: "/posts/_doc/1", IgnoreMissing: true})
	require.NoError(t, err)
	assert.Nil(t, body)
}

// TestPerform_ErrorEnrichment verifies that the server's own
// diagnostic text replaces the generic status message and the raw body
// is dropped from the error.
func TestPerform_ErrorEnrichment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		mustEncode(w, map[string]any{
			"error":  map[string]any{"type": "parsing_exception", "reason": "unknown query [foo]"},
			"status": 400,
		})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Method: "POST", Path: "/_search"})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindRequest, e.Kind)
	assert.Equal(t, "unknown query [foo]", e.Message)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Nil(t, e.Body, "raw body is redundant once the message is extracted")
	assert.Contains(t, err.Error(), "unknown query [foo]")
}

// TestPerform_LegacyErrorBody covers the older string-valued error
// field.
func TestPerform_LegacyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		mustEncode(w, map[string]any{"error": "IndexMissingException[[foo] missing]", "status": 400})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/foo/_search"})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "IndexMissingException[[foo] missing]", e.Message)
}

// TestPerform_NoRetryOnRequestError verifies that application-level
// failures are surfaced immediately, not retried against other nodes.
func TestPerform_NoRetryOnRequestError(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		mustEncode(w, map[string]any{"error": "boom"})
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	client, err := NewClient([]string{hostPort(srv1), hostPort(srv2)}, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/"})
	require.Error(t, err)
	assert.True(t, IsRequest(err))
	assert.EqualValues(t, 1, hits.Load(), "request errors must not fail over")
}

func TestPerform_Timeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
		mustEncode(w, map[string]any{"ok": true})
	}))
	defer srv.Close()

	client, err := NewClient([]string{hostPort(srv)},
		WithNoRefresh(), WithTimeout(30*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Perform(context.Background(), &Request{Path: "/"})
	assert.True(t, IsTimeout(err), "got %v", err)
	assert.EqualValues(t, 1, hits.Load(), "timeouts must not be retried")
}

func TestDo_NilRequest(t *testing.T) {
	client, err := NewClient(nil, WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	err = client.Do(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrParam)
}

// echoBackend returns the encoded request body as the response,
// bypassing the network entirely.
type echoBackend struct {
	codec Codec
}

func (b *echoBackend) Send(ctx context.Context, node string, req *Request) ([]byte, error) {
	return req.bodyBytes(b.codec)
}

func (b *echoBackend) SetTimeout(time.Duration) {}
func (b *echoBackend) SetCompression(bool)      {}
func (b *echoBackend) Close() error             { return nil }

// TestDo_EchoRoundTrip sends a structured body through a mock backend
// that echoes it back and verifies decoding reproduces the original
// value.
func TestDo_EchoRoundTrip(t *testing.T) {
	RegisterBackend("echo", func(cfg BackendConfig) (Backend, error) {
		return &echoBackend{codec: cfg.Codec}, nil
	})

	client, err := NewClient([]string{"a:9200"}, WithBackend("echo"), WithNoRefresh())
	require.NoError(t, err)
	defer client.Close()

	in := map[string]any{
		"query": map[string]any{"match": map[string]any{"title": "volcano"}},
		"size":  float64(10),
	}
	var out map[string]any
	err = client.Do(context.Background(),
		&Request{Method: "POST", Path: "/_search", Body: in}, &out)

	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewClient_UnknownBackend(t *testing.T) {
	_, err := NewClient(nil, WithBackend("carrier-pigeon"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParam)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestExtractAddress(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:9200":                  "127.0.0.1:9200",
		"inet[/192.168.1.4:9200]":         "192.168.1.4:9200",
		"inet[es1.local/10.0.0.4:9200]":   "10.0.0.4:9200",
		"es1.example.com/172.16.0.1:9201": "172.16.0.1:9201",
		"not-an-address":                  "",
		"":                                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractAddress(in), "input %q", in)
	}
}
