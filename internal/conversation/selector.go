package conversation

import (
	"context"
	"fmt"

	"github.com/narravox/pkg/models"
)

// Select fetches the full comment set of a conversation and applies a
// section's predicate. The second return is the conversation-wide comment
// count, which coverage reporting needs alongside the filtered records. An
// empty filtered set is a valid result, not an error.
func Select(ctx context.Context, store Store, conversationID string, pred Predicate) ([]models.CommentRecord, int, error) {
	comments, err := store.Comments(ctx, conversationID)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch comments for %s: %w", conversationID, err)
	}

	filtered := make([]models.CommentRecord, 0, len(comments))
	for _, c := range comments {
		if pred(c) {
			filtered = append(filtered, c)
		}
	}
	return filtered, len(comments), nil
}
