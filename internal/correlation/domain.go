// Package correlation remembers which tenant a submitted order token
// belongs to, so an unauthenticated provider callback can be routed
// back to the right ledger.
package correlation

import (
	"context"
	"errors"
	"time"
)

// Entry is the routing context captured at submission time.
type Entry struct {
	TenantID    string    `json:"tenantId"`
	AuthContext string    `json:"authContext,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	Count  int        `json:"count"`
	Oldest *time.Time `json:"oldest,omitempty"`
	Newest *time.Time `json:"newest,omitempty"`
}

type Store interface {
	// Put records the routing context for a token. Entries expire after
	// the configured TTL.
	Put(ctx context.Context, token string, entry Entry) error
	// Get returns the entry for a token. Expired entries are treated as
	// absent. Entries stay readable until expiry; callbacks for a merge
	// share one token and arrive more than once.
	Get(ctx context.Context, token string) (*Entry, error)
	// Sweep drops entries older than the TTL and returns how many were
	// removed.
	Sweep(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

var ErrNotFound = errors.New("correlation_entry_not_found")
