package etna

import (
	"log/slog"
	"net/http"
	"time"
)

type config struct {
	backend     string
	timeout     time.Duration
	maxRequests int
	noRefresh   bool
	compression bool
	httpClient  *http.Client
	codec       Codec
	trace       TraceSink
	logger      *slog.Logger
	debug       bool
}

// Option configures a Client.
type Option func(*config)

// WithBackend selects a registered backend by name. Defaults to
// [DefaultBackend].
func WithBackend(name string) Option {
	return func(c *config) {
		c.backend = name
	}
}

// WithTimeout sets the per-call time budget (connect plus read).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRequests sets how many dispatches happen between membership
// refreshes. 0 disables periodic refresh; the initial refresh on first
// use still runs unless [WithNoRefresh] is set.
func WithMaxRequests(n int) Option {
	return func(c *config) {
		c.maxRequests = n
	}
}

// WithNoRefresh disables membership queries entirely. The pool resets
// to the seed list when exhausted and unreachable nodes are evicted
// instead of refreshed away.
func WithNoRefresh() Option {
	return func(c *config) {
		c.noRefresh = true
	}
}

// WithCompression asks nodes for gzip-compressed response bodies.
func WithCompression() Option {
	return func(c *config) {
		c.compression = true
	}
}

// WithHTTPClient overrides the underlying HTTP client. Timeout and
// transport settings of the supplied client win over [WithTimeout]
// and [WithCompression].
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithCodec replaces the JSON codec used for bodies and results.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithTraceSink mirrors every outgoing request and incoming response
// into sink in a replayable form. See [CurlTracer].
func WithTraceSink(sink TraceSink) Option {
	return func(c *config) {
		c.trace = sink
	}
}

// WithLogger sets the structured logger for pool refreshes, node
// evictions, and version skips. Logging is off by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug additionally logs every dispatch at debug level.
func WithDebug() Option {
	return func(c *config) {
		c.debug = true
	}
}
