package models

import (
	"encoding/json"
)

// Conversation models

// Conversation holds the metadata needed to validate a report request.
type Conversation struct {
	ID           string `json:"conversation_id" db:"conversation_id"`
	CommentCount int    `json:"comment_count" db:"comment_count"`
}

// CommentRecord is one participant-submitted comment with its vote tallies
// and the math fields computed by the clustering engine. Records are
// immutable once fetched; optional fields are nil when the engine has not
// produced them for this conversation.
type CommentRecord struct {
	ID                  int        `json:"commentId" db:"comment_id"`
	Text                string     `json:"text" db:"txt"`
	Votes               VoteCounts `json:"votes"`
	GroupAwareConsensus *float64   `json:"groupAwareConsensus,omitempty" db:"group_aware_consensus"`
	Extremity           *float64   `json:"extremity,omitempty" db:"extremity"`
	NumGroups           *int       `json:"numGroups,omitempty" db:"num_groups"`
}

// VoteCounts aggregates the votes cast on a single comment.
type VoteCounts struct {
	Agrees    int `json:"agrees" db:"agrees"`
	Disagrees int `json:"disagrees" db:"disagrees"`
	Passes    int `json:"passes" db:"passes"`
	Total     int `json:"total" db:"total"`
}

// PassRate returns the share of votes that were passes. The second return
// is false for a comment with zero total votes, which can never satisfy a
// ratio threshold.
func (v VoteCounts) PassRate() (float64, bool) {
	if v.Total <= 0 {
		return 0, false
	}
	return float64(v.Passes) / float64(v.Total), true
}

// Topic is one theme discovered by the topic-extraction step, carrying the
// ids of the comments that motivated it.
type Topic struct {
	Name      string `json:"name"`
	Citations []int  `json:"citations"`
}

// Narrative models

// NarrativeResponse is the normalized structured output of a narrative
// section: paragraphs of sentences of clauses, with comment-id citations
// attached at the clause level.
type NarrativeResponse struct {
	Title      string               `json:"title,omitempty"`
	Paragraphs []NarrativeParagraph `json:"paragraphs"`
}

// NarrativeParagraph groups the sentences of one paragraph.
type NarrativeParagraph struct {
	Sentences []NarrativeSentence `json:"sentences"`
}

// NarrativeSentence groups the clauses of one sentence.
type NarrativeSentence struct {
	Clauses []NarrativeClause `json:"clauses"`
}

// NarrativeClause is the smallest cited unit of narrative text.
type NarrativeClause struct {
	Text      string `json:"text"`
	Citations []int  `json:"citations,omitempty"`
}

// Report envelope models

// CoverageMetrics quantifies how much of the filtered input a section's
// narrative actually cites. CoveragePercentage is nil when no comments
// survived filtering, so that an empty section is distinguishable from a
// section that cited nothing.
type CoverageMetrics struct {
	TotalComments       int      `json:"totalComments"`
	FilteredComments    int      `json:"filteredComments"`
	CitedComments       int      `json:"citedComments"`
	OmittedComments     int      `json:"omittedComments"`
	CoveragePercentage  *float64 `json:"coveragePercentage"`
	FabricatedCitations []int    `json:"fabricatedCitations,omitempty"`
}

// ErrorTag is the stable, machine-readable failure category carried by a
// section envelope. Operator-facing detail stays in the logs.
type ErrorTag string

const (
	TagNoContentAfterFilter   ErrorTag = "NO_CONTENT_AFTER_FILTER"
	TagDataSourceFailure      ErrorTag = "DATA_SOURCE_FAILURE"
	TagPromptBuildFailure     ErrorTag = "PROMPT_BUILD_FAILURE"
	TagModelInvocationFailure ErrorTag = "MODEL_INVOCATION_FAILURE"
	TagMalformedModelOutput   ErrorTag = "MALFORMED_MODEL_OUTPUT"
)

// SectionResult is the per-section payload of a report stream frame.
type SectionResult struct {
	ModelResponse json.RawMessage  `json:"modelResponse,omitempty"`
	Model         string           `json:"model"`
	Errors        ErrorTag         `json:"errors,omitempty"`
	Coverage      *CoverageMetrics `json:"coverage,omitempty"`
}

// SectionEnvelope is one self-describing stream frame: exactly one section
// name mapped to its result.
type SectionEnvelope map[string]SectionResult

// NewEnvelope wraps a single section result in its frame.
func NewEnvelope(section string, result SectionResult) SectionEnvelope {
	return SectionEnvelope{section: result}
}

// Section unwraps the single entry of an envelope. The boolean is false for
// a malformed envelope that does not hold exactly one section.
func (e SectionEnvelope) Section() (string, SectionResult, bool) {
	if len(e) != 1 {
		return "", SectionResult{}, false
	}
	for name, result := range e {
		return name, result, true
	}
	return "", SectionResult{}, false
}
