// Package cache keeps detected recurring patterns between the detection run
// that produced them and the later command that applies them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fascinih/finance-app/internal/model"
)

// Cache errors.
var (
	// ErrCacheMiss is returned when a run is absent or expired.
	ErrCacheMiss = errors.New("cache: run not found")
	// ErrInvalidRun is returned for runs without an id.
	ErrInvalidRun = errors.New("cache: invalid run")
)

// DefaultTTL is how long a detection run stays available for review.
const DefaultTTL = 24 * time.Hour

// Run is the output of one detection pass.
type Run struct {
	CreatedAt time.Time                `json:"created_at"`
	ID        string                   `json:"id"`
	Patterns  []model.RecurringPattern `json:"patterns"`
}

// Pattern looks up a pattern of the run by id or unique id prefix.
func (r Run) Pattern(id string) (model.RecurringPattern, error) {
	var found []model.RecurringPattern
	for _, p := range r.Patterns {
		if p.PatternID == id {
			return p, nil
		}
		if id != "" && strings.HasPrefix(p.PatternID, id) {
			found = append(found, p)
		}
	}

	switch len(found) {
	case 0:
		return model.RecurringPattern{}, fmt.Errorf("pattern %s not in run %s: %w", id, r.ID, ErrCacheMiss)
	case 1:
		return found[0], nil
	default:
		return model.RecurringPattern{}, fmt.Errorf("pattern prefix %s is ambiguous in run %s (%d matches)", id, r.ID, len(found))
	}
}

// PatternCache stores detection runs.
type PatternCache interface {
	// Put stores run for ttl and makes it the latest run.
	Put(ctx context.Context, run Run, ttl time.Duration) error
	// Get returns the run with the given id or ErrCacheMiss.
	Get(ctx context.Context, runID string) (Run, error)
	// Latest returns the most recently stored run or ErrCacheMiss.
	Latest(ctx context.Context) (Run, error)
	Close() error
}

// IsMiss reports whether err means the run is not cached.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func validateRun(run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRun)
	}
	return nil
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
