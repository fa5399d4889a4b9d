package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/narravox/pkg/models"
)

// ErrConversationNotFound is returned when a conversation id does not
// resolve in the upstream store.
var ErrConversationNotFound = errors.New("conversation not found")

// Store reads conversation data from the upstream system of record. The
// vote tallies and math fields are produced elsewhere; this interface is
// read-only.
type Store interface {
	Conversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	Comments(ctx context.Context, conversationID string) ([]models.CommentRecord, error)
}

// PGStore reads conversations from Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Conversation resolves a conversation id to its metadata.
func (s *PGStore) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `
		SELECT c.conversation_id,
		       (SELECT COUNT(*) FROM conversation_comments cc
		        WHERE cc.conversation_id = c.conversation_id) AS comment_count
		FROM conversations c
		WHERE c.conversation_id = $1`

	var conv models.Conversation
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(&conv.ID, &conv.CommentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// Comments fetches every comment of a conversation with its vote tallies
// and math fields. A missing total column falls back to the sum of the
// three vote kinds.
func (s *PGStore) Comments(ctx context.Context, conversationID string) ([]models.CommentRecord, error) {
	query := `
		SELECT comment_id, txt, agrees, disagrees, passes,
		       COALESCE(total, agrees + disagrees + passes) AS total,
		       group_aware_consensus, extremity, num_groups
		FROM conversation_comments
		WHERE conversation_id = $1
		ORDER BY comment_id`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query comments for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var records []models.CommentRecord
	for rows.Next() {
		var rec models.CommentRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Text,
			&rec.Votes.Agrees,
			&rec.Votes.Disagrees,
			&rec.Votes.Passes,
			&rec.Votes.Total,
			&rec.GroupAwareConsensus,
			&rec.Extremity,
			&rec.NumGroups,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment rows: %w", err)
	}

	return records, nil
}
