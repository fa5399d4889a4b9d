package sections

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/narravox/internal/config"
	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/prompts"
	"github.com/narravox/pkg/models"
)

// Spec describes one report section: the prompt template that shapes it,
// the system instruction that rides along, and the predicate deciding which
// comments the model gets to see. MaxTokens and Temperature override the
// per-model configuration when set.
type Spec struct {
	Name        string
	Template    string
	System      string
	Predicate   conversation.Predicate
	MaxTokens   int
	Temperature float64
}

// Fixed returns the built-in sections every report carries. The selection
// thresholds come from configuration so operators can tune them per
// deployment.
func Fixed(cfg *config.Config) []Spec {
	return []Spec{
		{
			Name:      "uncertainty",
			Template:  prompts.UncertaintyTemplate,
			System:    prompts.DefaultSystemInstruction,
			Predicate: conversation.UncertaintyShare(cfg.Sections.UncertaintyMinShare),
		},
		{
			Name:      "group_informed_consensus",
			Template:  prompts.ConsensusTemplate,
			System:    prompts.DefaultSystemInstruction,
			Predicate: conversation.MinConsensus(cfg.Sections.ConsensusMinScore),
		},
		{
			Name:      "groups",
			Template:  prompts.GroupsTemplate,
			System:    prompts.DefaultSystemInstruction,
			Predicate: conversation.Divisive(cfg.Sections.DivisiveMinExtremity),
		},
	}
}

// TopicsSpec is the extraction call that seeds the dynamic sections. It
// sees the whole conversation, so its predicate filters nothing.
func TopicsSpec() Spec {
	return Spec{
		Name:      "topics",
		Template:  prompts.TopicsTemplate,
		System:    prompts.TopicsSystemInstruction,
		Predicate: conversation.All(),
	}
}

// TopicSpec builds the narrative section for one extracted topic. The topic
// name is spliced into the template and the predicate narrows the input to
// the comments the extraction step cited for it. The name is escaped before
// splicing; the template has to stay a parseable document.
func TopicSpec(topic models.Topic) Spec {
	return Spec{
		Name: "topic_" + Slug(topic.Name),
		Template: prompts.ApplyVars(prompts.TopicNarrativeTemplate, map[string]string{
			"topic_name": xmlEscape(topic.Name),
		}),
		System:    prompts.DefaultSystemInstruction,
		Predicate: conversation.CitedBy(topic.Citations),
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a topic name into a stable section name suffix.
func Slug(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "untitled"
	}
	return s
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
