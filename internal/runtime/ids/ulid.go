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

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewMessageID returns the UUID stamped on every envelope the fabric publishes.
func NewMessageID() string {
	return CreateULID()
}

// NewJobID returns a lowercase ULID usable as a topic prefix on every
// supported broker.
func NewJobID() string {
	return strings.ToLower(CreateULID())
}

// JobTime extracts the creation time from a job id produced by NewJobID.
func JobTime(jobID string) (time.Time, bool) {
	id, err := ulid.ParseStrict(strings.ToUpper(jobID))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
