// Package etna provides a cluster-aware Go client transport for
// Elasticsearch-compatible search clusters.
//
// Etna handles the part of a search client that is easy to get wrong:
// tracking live cluster members, spreading requests across nodes,
// failing over on connection errors, refreshing the node list
// periodically, and turning low-level transport failures into a
// structured error taxonomy. Endpoint-specific parameter handling is a
// thin, table-driven layer on top; the transport itself treats request
// bodies as opaque payloads.
//
// # Quick Start
//
// Create a client from one or more seed nodes and issue a request:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/etnalab/etna-go"
//	)
//
//	func main() {
//	    client, err := etna.NewClient([]string{"127.0.0.1:9200"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    health, err := client.ClusterHealth(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("cluster %s is %s\n", health.ClusterName, health.Status)
//	}
//
// # Client Configuration
//
// The client is configured with functional options:
//
//	client, err := etna.NewClient([]string{"es1:9200", "es2:9200"},
//	    etna.WithTimeout(30*time.Second),
//	    etna.WithMaxRequests(10_000),
//	    etna.WithTraceSink(&etna.CurlTracer{W: os.Stderr}),
//	)
//
// # Node Selection and Failover
//
// The client keeps an ordered pool of nodes it believes are live.
// Requests rotate through the pool round-robin. When a node refuses or
// drops a connection the request transparently fails over to the next
// node, trying each known node at most once per logical request. Every
// max_requests dispatches the client re-queries cluster membership and
// replaces the pool; with [WithNoRefresh] it instead falls back to the
// seed list and evicts unreachable nodes.
//
// # Error Handling
//
// All failures are typed [*Error] values that callers can match by kind:
//
//	_, err := client.GetDocument(ctx, "posts", "1", nil)
//	if etna.IsMissing(err) {
//	    // document does not exist
//	}
//	var apiErr *etna.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == etna.KindNoServers {
//	    // no reachable cluster node
//	}
//
// # Backends
//
// The network round trip is pluggable. The default "http" backend talks
// JSON over HTTP with optional gzip response compression. Alternative
// backends can be registered at runtime with [RegisterBackend] and
// selected per client with [WithBackend].
//
// # Thread Safety
//
// A [Client] is safe for concurrent use by multiple goroutines. Pool
// rotation is a best-effort load-spreading heuristic; no ordering is
// promised between racing callers.
package etna
