// Package ids generates the identifiers attached to clients and connections
// in log output and metrics.
package ids

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var source = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{entropy: ulid.Monotonic(rand.Reader, 0)}

// New returns a time-sortable ULID encoded as a 26-character string. IDs from
// the same process sort in creation order, which keeps per-connection log
// lines easy to correlate.
func New() string {
	source.Lock()
	defer source.Unlock()
	return ulid.MustNew(ulid.Now(), source.entropy).String()
}
