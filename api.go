package etna

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	oaerrors "github.com/go-openapi/errors"
)

// Params carries the named arguments of one API call: path segments
// like "index" and "id", plus any endpoint-specific query parameters.
type Params map[string]any

// endpoint is one row of the immutable endpoint table: the shape of a
// command, not its semantics. Query and body payloads stay opaque.
type endpoint struct {
	method string
	path   string   // template, segments in {braces} are path params
	params []string // allowed query parameters
}

// endpoints is the declarative command table consumed by buildRequest.
// Optional path segments are handled by listing the template with the
// segment present; builders drop trailing segments whose parameter is
// absent only when the segment is marked with a '?' suffix.
var endpoints = map[string]endpoint{
	"doc.get": {
		method: "GET",
		path:   "/{index}/_doc/{id}",
		params: []string{"routing", "preference", "realtime", "refresh", "_source"},
	},
	"doc.index": {
		method: "PUT",
		path:   "/{index}/_doc/{id}",
		params: []string{"routing", "refresh", "version", "op_type", "timeout"},
	},
	"doc.create": {
		method: "POST",
		path:   "/{index}/_doc",
		params: []string{"routing", "refresh", "timeout"},
	},
	"doc.delete": {
		method: "DELETE",
		path:   "/{index}/_doc/{id}",
		params: []string{"routing", "refresh", "version", "timeout"},
	},
	"search": {
		method: "POST",
		path:   "/{index?}/_search",
		params: []string{"routing", "preference", "size", "from", "scroll", "timeout", "search_type"},
	},
	"search.scroll": {
		method: "POST",
		path:   "/_search/scroll",
		params: nil,
	},
	"search.clear_scroll": {
		method: "DELETE",
		path:   "/_search/scroll",
		params: nil,
	},
	"count": {
		method: "POST",
		path:   "/{index?}/_count",
		params: []string{"routing", "preference"},
	},
	"cluster.health": {
		method: "GET",
		path:   "/_cluster/health",
		params: []string{"level", "wait_for_status", "wait_for_nodes", "timeout"},
	},
	"cluster.nodes_info": {
		method: "GET",
		path:   nodesInfoPath,
		params: nil,
	},
}

// buildRequest expands one endpoint template into a Request. Missing
// required path parameters and parameters the endpoint does not accept
// surface as Param errors.
func buildRequest(name string, p Params, body any) (*Request, error) {
	spec, ok := endpoints[name]
	if !ok {
		return nil, newError(KindInternal, fmt.Sprintf("unknown endpoint %q", name), nil)
	}

	used := make(map[string]bool, len(p))
	var path strings.Builder
	for _, seg := range strings.Split(strings.TrimPrefix(spec.path, "/"), "/") {
		if !strings.HasPrefix(seg, "{") {
			path.WriteByte('/')
			path.WriteString(seg)
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
		optional := strings.HasSuffix(key, "?")
		key = strings.TrimSuffix(key, "?")

		v, present := p[key]
		if !present || v == nil || v == "" {
			if optional {
				continue
			}
			return nil, newError(KindParam,
				fmt.Sprintf("%s requires the %q parameter", name, key),
				oaerrors.Required(key, "path", nil))
		}
		used[key] = true
		s, err := formatParam(v)
		if err != nil {
			return nil, newError(KindParam,
				fmt.Sprintf("cannot encode path parameter %q", key), err)
		}
		path.WriteByte('/')
		path.WriteString(url.PathEscape(s))
	}

	var query map[string]any
	for k, v := range p {
		if used[k] {
			continue
		}
		allowed := false
		for _, a := range spec.params {
			if a == k {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, newError(KindParam,
				fmt.Sprintf("%s does not accept the %q parameter, allowed: %v",
					name, k, spec.params), nil)
		}
		if query == nil {
			query = make(map[string]any)
		}
		query[k] = v
	}

	return &Request{
		Method: spec.method,
		Path:   path.String(),
		Params: query,
		Body:   body,
	}, nil
}

// GetDocument fetches one document by ID. Returns a Missing error when
// the document does not exist; use [IsMissing] or [Client.ExistsDocument].
func (c *Client) GetDocument(ctx context.Context, index, id string, p Params) (*GetResult, error) {
	req, err := buildRequest("doc.get", withIdentity(p, index, id), nil)
	if err != nil {
		return nil, err
	}
	var out GetResult
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExistsDocument reports whether a document exists, suppressing the
// not-found error via the IgnoreMissing opt-in.
func (c *Client) ExistsDocument(ctx context.Context, index, id string) (bool, error) {
	req, err := buildRequest("doc.get", withIdentity(nil, index, id), nil)
	if err != nil {
		return false, err
	}
	req.IgnoreMissing = true
	body, err := c.Perform(ctx, req)
	if err != nil {
		return false, err
	}
	return body != nil, nil
}

// IndexDocument stores doc under the given index and ID, creating or
// replacing it. An empty ID lets the cluster assign one.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any, p Params) (*IndexResult, error) {
	name := "doc.index"
	if id == "" {
		name = "doc.create"
	}
	req, err := buildRequest(name, withIdentity(p, index, id), doc)
	if err != nil {
		return nil, err
	}
	var out IndexResult
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument removes one document by ID. With ignoreMissing the
// not-found case returns (nil, nil) instead of an error.
func (c *Client) DeleteDocument(ctx context.Context, index, id string, ignoreMissing bool, p Params) (*DeleteResult, error) {
	req, err := buildRequest("doc.delete", withIdentity(p, index, id), nil)
	if err != nil {
		return nil, err
	}
	req.IgnoreMissing = ignoreMissing
	body, err := c.Perform(ctx, req)
	if err != nil || body == nil {
		return nil, err
	}
	var out DeleteResult
	if err := c.codec.Decode(body, &out); err != nil {
		return nil, newError(KindInternal, "cannot decode response body", err)
	}
	return &out, nil
}

// Search runs a query against one index, or the whole cluster when
// index is empty. The query body is an opaque payload.
func (c *Client) Search(ctx context.Context, index string, query any, p Params) (*SearchResult, error) {
	req, err := buildRequest("search", withIdentity(p, index, ""), query)
	if err != nil {
		return nil, err
	}
	var out SearchResult
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Count returns the number of documents matching query.
func (c *Client) Count(ctx context.Context, index string, query any, p Params) (*CountResult, error) {
	req, err := buildRequest("count", withIdentity(p, index, ""), query)
	if err != nil {
		return nil, err
	}
	var out CountResult
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClusterHealth reports cluster status.
func (c *Client) ClusterHealth(ctx context.Context, p Params) (*ClusterHealth, error) {
	req, err := buildRequest("cluster.health", p, nil)
	if err != nil {
		return nil, err
	}
	var out ClusterHealth
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NodesInfo returns the raw membership view the server pool refreshes
// from.
func (c *Client) NodesInfo(ctx context.Context) (*NodesInfo, error) {
	req, err := buildRequest("cluster.nodes_info", nil, nil)
	if err != nil {
		return nil, err
	}
	var out NodesInfo
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// withIdentity copies p and folds in the index/id path parameters.
func withIdentity(p Params, index, id string) Params {
	out := make(Params, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	if index != "" {
		out["index"] = index
	}
	if id != "" {
		out["id"] = id
	}
	return out
}
