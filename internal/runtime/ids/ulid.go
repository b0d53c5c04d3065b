package ids

import (
	"crypto/rand"
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

// NewCorrelationID returns a fresh correlation id for an outgoing message.
func NewCorrelationID() string {
	return CreateULID()
}

// CorrelationIDOrNew returns id unless it is empty.
func CorrelationIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return NewCorrelationID()
}

// Timestamp extracts the creation time encoded in a ULID. ok is false for
// ids that are not ULIDs, such as caller-supplied correlation ids.
func Timestamp(id string) (ts time.Time, ok bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
