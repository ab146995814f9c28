package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID. Message ids and correlation ids of
// bridged events use it.
func New() string {
	return next().String()
}

// NodeID returns an identifier for one process taking part in a bridge, in
// the form "<prefix>-<lowercase ulid>". An empty prefix yields "node-...".
func NodeID(prefix string) string {
	if prefix == "" {
		prefix = "node"
	}
	return prefix + "-" + strings.ToLower(next().String())
}

// Time extracts the creation time encoded in a ULID.
func Time(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}

func next() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}
