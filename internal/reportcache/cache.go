package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/narravox/pkg/models"
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("reportcache: entry not found")

// Key addresses one cached section: which report, which section, and which
// model backend produced it.
type Key struct {
	ReportID string
	Section  string
	Model    string
}

// escaper keeps key components from colliding with the canonical separator.
var escaper = strings.NewReplacer("%", "%25", "#", "%23")

// Canonical renders the key as a single cache_key value. Components are
// escaped so a "#" inside an id cannot alias another key.
func (k Key) Canonical() string {
	return escaper.Replace(k.ReportID) + "#" + escaper.Replace(k.Section) + "#" + escaper.Replace(k.Model)
}

// Result is one cached section synthesis.
type Result struct {
	Key        Key
	CreatedAt  time.Time
	ReportData json.RawMessage
	Model      string
	Errors     models.ErrorTag
	Coverage   *models.CoverageMetrics
}

// Fresh reports whether the entry is younger than the freshness horizon.
func (r *Result) Fresh(horizon time.Duration) bool {
	return time.Since(r.CreatedAt) < horizon
}

// Store is the persistence surface for cached sections. Put replaces any
// previous entry under the same key; which results are worth caching is the
// caller's policy, not the store's.
type Store interface {
	Get(ctx context.Context, key Key) (*Result, error)
	Put(ctx context.Context, result *Result) error
	Delete(ctx context.Context, key Key) error
}
