package etna

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Backend performs exactly one network round trip against one node and
// classifies the outcome. Implementations return the raw response body
// on success, or a *Error of kind Connection, Timeout, or Request
// (Missing/Conflict allowed for adapters with richer classification).
//
// Backends own their connection resources. Changing the timeout or
// compression setting must invalidate any cached client so the next
// call picks up the new configuration.
type Backend interface {
	Send(ctx context.Context, node string, req *Request) ([]byte, error)

	// SetTimeout changes the per-call time budget (connect plus read).
	SetTimeout(d time.Duration)

	// SetCompression toggles response compression on the wire.
	SetCompression(enabled bool)

	// Close releases any pooled connections.
	Close() error
}

// BackendConfig is handed to a BackendFactory at construction.
type BackendConfig struct {
	// Timeout bounds one network round trip.
	Timeout time.Duration

	// Compression asks the node for compressed response bodies.
	Compression bool

	// HTTPClient optionally overrides the underlying client for
	// HTTP-family backends.
	HTTPClient *http.Client

	// Codec encodes structured request bodies.
	Codec Codec
}

// BackendFactory builds a Backend from its configuration.
type BackendFactory func(cfg BackendConfig) (Backend, error)

// DefaultBackend is the backend selected when no [WithBackend] option
// is given.
const DefaultBackend = "http"

var (
	backendsMu sync.RWMutex
	backends   = map[string]BackendFactory{
		DefaultBackend: newHTTPBackend,
	}
)

// RegisterBackend adds a named backend at runtime. Registering an
// existing name replaces the previous factory.
func RegisterBackend(name string, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// AvailableBackends returns the registered backend names.
func AvailableBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}

// HasBackend reports whether a backend name is registered.
func HasBackend(name string) bool {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	_, ok := backends[name]
	return ok
}

func newBackend(name string, cfg BackendConfig) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, newError(KindParam,
			fmt.Sprintf("unknown backend %q, registered: %v", name, AvailableBackends()), nil)
	}
	return factory(cfg)
}
