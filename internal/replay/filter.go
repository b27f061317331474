package replay

import (
	"slices"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/recorder"
)

// Filter selects which traffic records are replayed. Zero-valued fields do
// not filter.
type Filter struct {
	Keys      []string  // exact key matches
	Endpoints []string  // substring matches against the endpoint
	After     time.Time // strictly after
	Before    time.Time // strictly before
}

// Match reports whether r passes every configured criterion.
func (f Filter) Match(r recorder.TrafficRecord) bool {
	if len(f.Keys) > 0 && !slices.Contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Endpoints) > 0 && !slices.ContainsFunc(f.Endpoints, func(p string) bool {
		return strings.Contains(r.Endpoint, p)
	}) {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	return true
}
