package etna

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// TraceSink receives a replayable mirror of every outgoing request and
// incoming response. Implementations must be safe for concurrent use;
// a Client shared between goroutines calls the sink from all of them.
type TraceSink interface {
	// TraceRequest is called before the wire call with the resolved
	// target URL and the encoded body, if any.
	TraceRequest(node, method, url string, body []byte)

	// TraceResponse is called after the wire call. Exactly one of body
	// and err is meaningful; err carries the status for failures.
	TraceResponse(node string, body []byte, took time.Duration, err error)
}

// CurlTracer writes each request as a shell-replayable curl command,
// followed by the response (or error) on commented lines:
//
//	curl -XGET 'http://127.0.0.1:9200/_search?pretty=1' -d '{"query":{"match_all":{}}}'
//	# OK took 2ms
//	# {"took":1,"hits":{...}}
type CurlTracer struct {
	mu sync.Mutex

	// W is the destination, typically os.Stderr or a log file.
	W io.Writer
}

func (t *CurlTracer) TraceRequest(node, method, url string, body []byte) {
	line := fmt.Sprintf("curl -X%s '%s'", method, withPretty(url))
	if len(body) > 0 {
		line += fmt.Sprintf(" -d '%s'", strings.ReplaceAll(string(body), "'", `'\''`))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.W, line)
}

func (t *CurlTracer) TraceResponse(node string, body []byte, took time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		fmt.Fprintf(t.W, "# ERROR took %s\n# %s\n", took.Round(time.Millisecond), err)
		return
	}
	fmt.Fprintf(t.W, "# OK took %s\n", took.Round(time.Millisecond))
	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		fmt.Fprintf(t.W, "# %s\n", line)
	}
}

// withPretty appends pretty=1 so the replayed command produces
// human-readable output.
func withPretty(url string) string {
	if strings.Contains(url, "?") {
		return url + "&pretty=1"
	}
	return url + "?pretty=1"
}
