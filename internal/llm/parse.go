package llm

import (
	"fmt"
	"strings"

	"github.com/narravox/pkg/models"
)

// ParseNarrative turns a raw model response into the structured narrative a
// section emits. The response goes through extraction and repair first, so
// a narrative wrapped in markdown fences or missing a closing brace still
// parses. An empty narrative is an error: a model that answered with no
// paragraphs produced nothing worth caching.
func ParseNarrative(raw string) (*models.NarrativeResponse, error) {
	var narrative models.NarrativeResponse
	if _, err := ProcessResponse(raw, &narrative); err != nil {
		return nil, fmt.Errorf("parse narrative response: %w", err)
	}

	if len(narrative.Paragraphs) == 0 {
		return nil, fmt.Errorf("narrative response has no paragraphs")
	}
	for _, p := range narrative.Paragraphs {
		for _, s := range p.Sentences {
			for _, c := range s.Clauses {
				if strings.TrimSpace(c.Text) == "" {
					return nil, fmt.Errorf("narrative response contains an empty clause")
				}
			}
		}
	}

	return &narrative, nil
}

// topicList matches the topic-extraction output shape.
type topicList struct {
	Topics []models.Topic `json:"topics"`
}

// ParseTopics turns a raw topic-extraction response into the topic list
// that seeds the dynamic sections. Topics without a name are dropped; an
// empty list is valid and simply yields no dynamic sections.
func ParseTopics(raw string) ([]models.Topic, error) {
	var list topicList
	if _, err := ProcessResponse(raw, &list); err != nil {
		return nil, fmt.Errorf("parse topics response: %w", err)
	}

	topics := make([]models.Topic, 0, len(list.Topics))
	for _, t := range list.Topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		topics = append(topics, t)
	}
	return topics, nil
}
