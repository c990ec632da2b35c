package etna

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind string

const (
	// KindParam means the caller supplied an invalid or unsupported
	// argument combination. Never retried.
	KindParam Kind = "PARAM"

	// KindNoServers means no reachable node could be found during
	// selection or refresh. Fatal to the current request.
	KindNoServers Kind = "NO_SERVERS"

	// KindConnection means a connection to a specific node could not be
	// established or was dropped. Triggers failover to another node.
	KindConnection Kind = "CONNECTION"

	// KindTimeout means the call exceeded the configured time budget.
	KindTimeout Kind = "TIMEOUT"

	// KindRequest means the node answered but reported an
	// application-level failure (non-success status).
	KindRequest Kind = "REQUEST"

	// KindConflict is a Request specialization for optimistic-concurrency
	// version mismatches (HTTP 409).
	KindConflict Kind = "CONFLICT"

	// KindMissing is a Request specialization for not-found lookups
	// (HTTP 404). May be suppressed via Request.IgnoreMissing.
	KindMissing Kind = "MISSING"

	// KindInternal means a defect in the transport itself.
	KindInternal Kind = "INTERNAL"
)

// Error represents a classified transport failure.
type Error struct {
	// Kind is the failure class. See the Kind constants.
	Kind Kind

	// Message is a human-readable description. When the remote node
	// supplied its own diagnostic text, Message carries that text.
	Message string

	// Node is the host:port the failure originated from, if applicable.
	Node string

	// StatusCode is the HTTP status, if the node answered.
	StatusCode int

	// Body is the raw response body, kept until the dispatcher extracts
	// the server-reported message from it.
	Body []byte

	// Context carries arbitrary debug values (attempted node lists,
	// the offending request, and so on).
	Context map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("etna: %s: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("etna: %s: [%d] %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Node != "" {
		msg += fmt.Sprintf(" (node %s)", e.Node)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so callers can use errors.Is
// with the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrParam      = &Error{Kind: KindParam}
	ErrNoServers  = &Error{Kind: KindNoServers}
	ErrConnection = &Error{Kind: KindConnection}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrRequest    = &Error{Kind: KindRequest}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrMissing    = &Error{Kind: KindMissing}
	ErrInternal   = &Error{Kind: KindInternal}
)

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// with attaches a debug value and returns the error for chaining.
func (e *Error) with(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// kindOf extracts the Kind from an error chain, or "" for unclassified
// errors.
func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConnection reports whether err is a connection-class failure, the
// only kind the dispatcher fails over on.
func IsConnection(err error) bool {
	return kindOf(err) == KindConnection
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return kindOf(err) == KindTimeout
}

// IsMissing reports whether err is a not-found failure.
func IsMissing(err error) bool {
	return kindOf(err) == KindMissing
}

// IsConflict reports whether err is a version-conflict failure.
func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}

// IsRequest reports whether err is an application-level failure,
// including the Missing and Conflict specializations.
func IsRequest(err error) bool {
	switch kindOf(err) {
	case KindRequest, KindMissing, KindConflict:
		return true
	}
	return false
}
