package conversation

import (
	"github.com/narravox/pkg/models"
)

// Predicate decides whether one comment belongs in a section's input set.
type Predicate func(models.CommentRecord) bool

// All keeps every comment. Topic extraction works over the full
// conversation.
func All() Predicate {
	return func(models.CommentRecord) bool { return true }
}

// MinConsensus keeps comments whose group-aware consensus score reaches
// min. Comments the clustering engine has not scored are excluded.
func MinConsensus(min float64) Predicate {
	return func(c models.CommentRecord) bool {
		return c.GroupAwareConsensus != nil && *c.GroupAwareConsensus >= min
	}
}

// UncertaintyShare keeps comments where at least minShare of the votes were
// passes. A comment with zero total votes can never qualify.
func UncertaintyShare(minShare float64) Predicate {
	return func(c models.CommentRecord) bool {
		rate, ok := c.Votes.PassRate()
		return ok && rate >= minShare
	}
}

// Divisive keeps comments whose extremity reaches min, the ones that pull
// the opinion groups apart.
func Divisive(min float64) Predicate {
	return func(c models.CommentRecord) bool {
		return c.Extremity != nil && *c.Extremity >= min
	}
}

// CitedBy keeps the comments a topic names.
func CitedBy(ids []int) Predicate {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(c models.CommentRecord) bool {
		_, ok := set[c.ID]
		return ok
	}
}
