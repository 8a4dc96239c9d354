package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, so lead and
// export listings come back in capture order without a secondary index.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
