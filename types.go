package etna

import "encoding/json"

// NodesInfo is the response of the cluster-membership query. The
// server pool extracts each node's bound http_address from it.
type NodesInfo struct {
	ClusterName string              `json:"cluster_name"`
	Nodes       map[string]NodeInfo `json:"nodes"`
}

// NodeInfo describes one cluster member.
type NodeInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	HTTPAddress string `json:"http_address"`
}

// ClusterHealth is the response of [Client.ClusterHealth].
type ClusterHealth struct {
	ClusterName         string `json:"cluster_name"`
	Status              string `json:"status"`
	TimedOut            bool   `json:"timed_out"`
	NumberOfNodes       int    `json:"number_of_nodes"`
	NumberOfDataNodes   int    `json:"number_of_data_nodes"`
	ActivePrimaryShards int    `json:"active_primary_shards"`
	ActiveShards        int    `json:"active_shards"`
	RelocatingShards    int    `json:"relocating_shards"`
	UnassignedShards    int    `json:"unassigned_shards"`
}

// IsGreen reports whether every shard is allocated.
func (h *ClusterHealth) IsGreen() bool {
	return h.Status == "green"
}

// IsAvailable reports whether the cluster can serve requests (green or
// yellow).
func (h *ClusterHealth) IsAvailable() bool {
	return h.Status == "green" || h.Status == "yellow"
}

// GetResult is the response of [Client.GetDocument].
type GetResult struct {
	Index   string          `json:"_index"`
	ID      string          `json:"_id"`
	Version int64           `json:"_version"`
	Found   bool            `json:"found"`
	Source  json.RawMessage `json:"_source"`
}

// Decode unmarshals the document source into v.
func (r *GetResult) Decode(v any) error {
	return json.Unmarshal(r.Source, v)
}

// IndexResult is the response of [Client.IndexDocument].
type IndexResult struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

// Created reports whether the call created a new document rather than
// updating an existing one.
func (r *IndexResult) Created() bool {
	return r.Result == "created"
}

// DeleteResult is the response of [Client.DeleteDocument].
type DeleteResult struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

// Deleted reports whether a document was actually removed.
func (r *DeleteResult) Deleted() bool {
	return r.Result == "deleted"
}

// SearchResult is the response of [Client.Search].
type SearchResult struct {
	Took     int    `json:"took"`
	TimedOut bool   `json:"timed_out"`
	ScrollID string `json:"_scroll_id,omitempty"`
	Hits     Hits   `json:"hits"`
}

// Hits is the hit envelope of a search response.
type Hits struct {
	Total    HitTotal `json:"total"`
	MaxScore float64  `json:"max_score"`
	Hits     []Hit    `json:"hits"`
}

// HitTotal carries the total hit count. Newer clusters encode it as
// {"value": N, "relation": "eq"}, older ones as a bare integer;
// UnmarshalJSON accepts both.
type HitTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

func (t *HitTotal) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '{' {
		t.Relation = "eq"
		return json.Unmarshal(data, &t.Value)
	}
	type plain HitTotal
	return json.Unmarshal(data, (*plain)(t))
}

// Hit is one search hit.
type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// Decode unmarshals the hit source into v.
func (h *Hit) Decode(v any) error {
	return json.Unmarshal(h.Source, v)
}

// CountResult is the response of [Client.Count].
type CountResult struct {
	Count int64 `json:"count"`
}
