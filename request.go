package etna

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-openapi/swag"
)

// Request describes one logical request against the cluster. It is
// built by the caller (usually via the endpoint table in api.go),
// normalized once by the dispatcher, and treated as immutable from
// then on.
type Request struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// Path is the command path, e.g. "/posts/_search". Defaults to "/".
	Path string

	// Params are query-string parameters. Values may be strings, bools,
	// integer and float types, fmt.Stringers, or slices thereof (slices
	// are joined with commas).
	Params map[string]any

	// Body is the optional request payload: []byte and string are sent
	// verbatim, anything else is encoded with the client's codec.
	Body any

	// IgnoreMissing suppresses a Missing error into an empty result.
	IgnoreMissing bool
}

// normalized returns a copy with defaults applied. The original is
// never mutated.
func (r *Request) normalized() *Request {
	n := *r
	if n.Method == "" {
		n.Method = "GET"
	}
	if n.Path == "" {
		n.Path = "/"
	} else if !strings.HasPrefix(n.Path, "/") {
		n.Path = "/" + n.Path
	}
	return &n
}

// target builds the full URL for one node.
func (r *Request) target(node string) (string, error) {
	qs, err := r.queryString()
	if err != nil {
		return "", err
	}
	u := "http://" + node + r.Path
	if qs != "" {
		u += "?" + qs
	}
	return u, nil
}

// queryString encodes Params deterministically (sorted by key).
func (r *Request) queryString() (string, error) {
	if len(r.Params) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		v, err := formatParam(r.Params[k])
		if err != nil {
			return "", newError(KindParam,
				fmt.Sprintf("cannot encode query parameter %q", k), err)
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	return b.String(), nil
}

// formatParam converts one query parameter value to its wire form.
func formatParam(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return swag.FormatBool(t), nil
	case int:
		return swag.FormatInt64(int64(t)), nil
	case int32:
		return swag.FormatInt32(t), nil
	case int64:
		return swag.FormatInt64(t), nil
	case float32:
		return swag.FormatFloat32(t), nil
	case float64:
		return swag.FormatFloat64(t), nil
	case fmt.Stringer:
		return t.String(), nil
	case []string:
		return strings.Join(t, ","), nil
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			s, err := formatParam(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}
}

// bodyBytes encodes the payload with the given codec. []byte and
// string payloads pass through verbatim.
func (r *Request) bodyBytes(codec Codec) ([]byte, error) {
	switch t := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		data, err := codec.Encode(r.Body)
		if err != nil {
			return nil, newError(KindParam, "cannot encode request body", err)
		}
		return data, nil
	}
}

// describe renders a compact one-line form for error context and logs.
func (r *Request) describe() string {
	qs, _ := r.queryString()
	s := r.Method + " " + r.Path
	if qs != "" {
		s += "?" + qs
	}
	return s
}
