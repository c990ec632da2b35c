package etna

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
)

// probeFunc issues the cluster-membership query against a single node
// and returns the live host:port list. It must never re-enter the
// pool; the dispatcher pins the probed node for exactly that reason.
type probeFunc func(ctx context.Context, node string) ([]string, error)

// serverPool owns the mutable list of known-live nodes, the immutable
// seed list, and the round-robin cursor. All mutation happens under
// one mutex; the pool is the only shared state inside a Client.
type serverPool struct {
	mu sync.Mutex

	seed []string       // immutable after construction
	live []string       // nodes from the last successful refresh
	bad  map[string]int // failure counts, reset per logical request

	// refreshIn counts dispatches until the next forced refresh.
	// 0 forces a refresh (or a seed reset in noRefresh mode) before the
	// next node is handed out; -1 means periodic refresh is disabled.
	refreshIn   int
	maxRequests int
	noRefresh   bool

	probe  probeFunc
	logger *slog.Logger
}

func newServerPool(seeds []string, maxRequests int, noRefresh bool, probe probeFunc, logger *slog.Logger) *serverPool {
	return &serverPool{
		seed:        append([]string(nil), seeds...),
		bad:         make(map[string]int),
		maxRequests: maxRequests,
		noRefresh:   noRefresh,
		probe:       probe,
		logger:      logger,
	}
}

// next hands out the next node to try, refreshing or reseeding first
// when the countdown has run out. The returned node rotates to the
// back of the pool. Nodes in tried are skipped, so a single request
// dials each known node at most once; when every live node has been
// tried the seeds become selectable, keeping the selection in step
// with hasUntried.
func (p *serverPool) next(ctx context.Context, tried map[string]bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refreshIn == 0 {
		if p.noRefresh {
			p.reseedLocked()
		} else if err := p.refreshLocked(ctx); err != nil {
			return "", err
		}
	} else if p.refreshIn > 0 {
		p.refreshIn--
	}

	// At most one full revolution past already-tried nodes.
	for i := 0; i < len(p.live); i++ {
		node := p.live[0]
		p.live = append(p.live[1:], node)
		if !tried[node] {
			return node, nil
		}
	}

	// Live pool exhausted (or empty): fall back to seeds that have
	// neither been tried nor failed in this request.
	for _, s := range p.seed {
		if !tried[s] && p.bad[s] == 0 {
			return s, nil
		}
	}
	return "", newError(KindNoServers, "no live servers available", nil).
		with("servers", p.candidatesLocked())
}

// refresh re-queries cluster membership and replaces the live pool.
func (p *serverPool) refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

// refreshLocked probes the union of the current pool and the seeds in
// randomized order, stopping at the first node that answers. Holding
// the lock through the probe keeps pool mutation a single critical
// section; the probe is pinned and cannot deadlock back into next.
func (p *serverPool) refreshLocked(ctx context.Context) error {
	candidates := p.candidatesLocked()
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for _, node := range candidates {
		servers, err := p.probe(ctx, node)
		if err != nil {
			p.logger.Debug("membership probe failed", "node", node, "error", err)
			continue
		}
		if len(servers) == 0 {
			p.logger.Debug("membership probe returned no usable nodes", "node", node)
			continue
		}
		p.live = servers
		p.resetCountdownLocked()
		p.logger.Debug("server pool refreshed", "servers", servers)
		return nil
	}

	return newError(KindNoServers, "could not retrieve a live server list", nil).
		with("servers", candidates)
}

// reseedLocked resets the pool to the seed list without a membership
// query (noRefresh mode).
func (p *serverPool) reseedLocked() {
	p.live = append([]string(nil), p.seed...)
	p.bad = make(map[string]int)
	p.resetCountdownLocked()
}

func (p *serverPool) resetCountdownLocked() {
	if p.maxRequests > 0 {
		p.refreshIn = p.maxRequests - 1
	} else {
		p.refreshIn = -1
	}
}

// candidatesLocked returns the deduplicated union of live and seed
// nodes, live first.
func (p *serverPool) candidatesLocked() []string {
	seen := make(map[string]bool, len(p.live)+len(p.seed))
	out := make([]string, 0, len(p.live)+len(p.seed))
	for _, group := range [][]string{p.live, p.seed} {
		for _, node := range group {
			if !seen[node] {
				seen[node] = true
				out = append(out, node)
			}
		}
	}
	return out
}

// fail records a connection failure. In noRefresh mode the node is
// also evicted from the live pool, since no refresh will ever replace
// the list.
func (p *serverPool) fail(node string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad[node]++
	if p.noRefresh {
		p.removeLocked(node)
	}
}

// remove evicts a node from the live pool and counts the failure.
func (p *serverPool) remove(node string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad[node]++
	p.removeLocked(node)
}

func (p *serverPool) removeLocked(node string) {
	out := p.live[:0]
	for _, n := range p.live {
		if n != node {
			out = append(out, n)
		}
	}
	p.live = out
}

// resetFailures clears the failure counts at the start of a logical
// request, giving it a fresh failover budget across all known nodes.
func (p *serverPool) resetFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad = make(map[string]int)
}

// hasUntried reports whether any known node is absent from tried.
func (p *serverPool) hasUntried(tried map[string]bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, node := range p.candidatesLocked() {
		if !tried[node] {
			return true
		}
	}
	return false
}

// servers returns a snapshot of the live pool.
func (p *serverPool) servers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.live...)
}

// seeds returns the immutable default pool.
func (p *serverPool) seeds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seed...)
}

func (p *serverPool) getMaxRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxRequests
}

// setMaxRequests changes the refresh threshold. 0 disables periodic
// refresh, though an initial refresh on first use still happens unless
// noRefresh is set.
func (p *serverPool) setMaxRequests(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxRequests = n
	switch {
	case n == 0 && p.refreshIn > 0:
		p.refreshIn = -1
	case n > 0 && (p.refreshIn < 0 || p.refreshIn > n-1):
		p.refreshIn = n - 1
	}
}
