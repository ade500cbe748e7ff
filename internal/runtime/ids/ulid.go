package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/oklog/ulid/v2"
)

// AnonymousSuffixLength is the length of suffixes returned by AnonymousSuffix.
const AnonymousSuffixLength = 22

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

// AnonymousSuffix returns a random 22-character alphanumeric string (a base57
// encoded UUIDv4) used to name ephemeral queues.
func AnonymousSuffix() string {
	return shortuuid.New()
}
