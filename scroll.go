package etna

import (
	"context"
	"sync/atomic"
)

// defaultScrollKeepAlive is how long the cluster keeps a scroll
// context alive between batches.
const defaultScrollKeepAlive = "1m"

// Scroll iterates over a large result set batch by batch, keeping a
// server-side scroll context alive between calls.
//
// Use [Client.Scroll] to open one, then iterate:
//
//	scroll, err := client.Scroll(ctx, "logs", query, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scroll.Close(ctx)
//
//	for scroll.Next(ctx) {
//	    for _, hit := range scroll.Hits() {
//	        // process hit
//	    }
//	}
//	if err := scroll.Err(); err != nil {
//	    log.Fatal(err)
//	}
type Scroll struct {
	client    *Client
	keepAlive string
	scrollID  string
	current   *SearchResult
	started   bool
	err       error
	closed    atomic.Bool
}

// Scroll opens a scrolled search against one index (or the whole
// cluster when index is empty). Recognized params: everything the
// search endpoint accepts; "scroll" overrides the keep-alive window.
func (c *Client) Scroll(ctx context.Context, index string, query any, p Params) (*Scroll, error) {
	keepAlive := defaultScrollKeepAlive
	if v, ok := p["scroll"].(string); ok && v != "" {
		keepAlive = v
	} else {
		merged := make(Params, len(p)+1)
		for k, v := range p {
			merged[k] = v
		}
		merged["scroll"] = keepAlive
		p = merged
	}

	req, err := buildRequest("search", withIdentity(p, index, ""), query)
	if err != nil {
		return nil, err
	}
	var first SearchResult
	if err := c.Do(ctx, req, &first); err != nil {
		return nil, err
	}
	if first.ScrollID == "" {
		return nil, newError(KindInternal, "cluster did not return a scroll ID", nil)
	}
	return &Scroll{
		client:    c,
		keepAlive: keepAlive,
		scrollID:  first.ScrollID,
		current:   &first,
	}, nil
}

// Next advances to the next batch. The first call yields the batch
// returned when the scroll was opened. Returns false once the result
// set is exhausted or an error occurred; check [Scroll.Err] after.
func (s *Scroll) Next(ctx context.Context) bool {
	if s.closed.Load() || s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		return len(s.current.Hits.Hits) > 0
	}

	req, err := buildRequest("search.scroll", nil, map[string]string{
		"scroll":    s.keepAlive,
		"scroll_id": s.scrollID,
	})
	if err != nil {
		s.err = err
		return false
	}
	var batch SearchResult
	if err := s.client.Do(ctx, req, &batch); err != nil {
		s.err = err
		return false
	}
	if batch.ScrollID != "" {
		s.scrollID = batch.ScrollID
	}
	s.current = &batch
	return len(batch.Hits.Hits) > 0
}

// Hits returns the current batch.
func (s *Scroll) Hits() []Hit {
	if s.current == nil {
		return nil
	}
	return s.current.Hits.Hits
}

// Total returns the total hit count reported when the scroll was
// opened.
func (s *Scroll) Total() int64 {
	if s.current == nil {
		return 0
	}
	return s.current.Hits.Total.Value
}

// Err returns the error that stopped iteration, if any.
func (s *Scroll) Err() error {
	return s.err
}

// Close releases the server-side scroll context. Safe to call more
// than once.
func (s *Scroll) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	req, err := buildRequest("search.clear_scroll", nil, map[string][]string{
		"scroll_id": {s.scrollID},
	})
	if err != nil {
		return err
	}
	// Clearing a scroll that already expired server-side answers 404.
	req.IgnoreMissing = true
	return s.client.Do(ctx, req, nil)
}
