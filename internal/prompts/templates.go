package prompts

import (
	"fmt"
	"os"
)

// System instructions travel as the model's plain-text system message.
// Everything needing literal JSON punctuation lives here, because character
// data inside the markup templates is entity-escaped on serialization.

// System role definitions
const (
	// NarrativeWriterRole defines the AI role for report synthesis
	NarrativeWriterRole = `You are a professional journalist and data analyst. You write neutral, factual summaries of public opinion-gathering conversations. You never editorialize and you never invent opinions that are absent from the source comments.`
)

// Citation and output format rules
const (
	// CitationRules governs how the narrative references source comments
	CitationRules = `CITATION RULES:
- Every clause must cite the ids of the comments that support it.
- Cite only ids that appear in the data block of the prompt. Citing any other id is an error.
- Prefer citing several distinct comments over repeating one.
- A comment id may be cited in more than one clause when genuinely relevant.`

	// NarrativeJSONStructure provides the expected JSON output format for narrative sections
	NarrativeJSONStructure = `Format your response as JSON with the following structure and output nothing else:
` + "```json" + `
{
  "title": "Short section title",
  "paragraphs": [
    {
      "sentences": [
        {
          "clauses": [
            {"text": "One factual clause of the narrative", "citations": [3, 7]}
          ]
        }
      ]
    }
  ]
}
` + "```"

	// TopicsJSONStructure provides the expected JSON output format for topic extraction
	TopicsJSONStructure = `Format your response as JSON with the following structure and output nothing else:
` + "```json" + `
{
  "topics": [
    {"name": "Short topic name", "citations": [3, 7, 19]}
  ]
}
` + "```"
)

// Assembled system messages
const (
	// DefaultSystemInstruction is the system message for narrative sections
	DefaultSystemInstruction = NarrativeWriterRole + "\n\n" + CitationRules + "\n\n" + NarrativeJSONStructure

	// TopicsSystemInstruction is the system message for the topic-extraction step
	TopicsSystemInstruction = NarrativeWriterRole + "\n\n" + CitationRules + "\n\n" + TopicsJSONStructure
)

// Section templates. The last element of each template is the data block
// the builder fills with comment elements. Template prose avoids quote and
// apostrophe characters so the serialized document stays free of entity
// references.
const (
	// UncertaintyTemplate drives the section about comments with a high share of pass votes
	UncertaintyTemplate = `<reportSectionPrompt>
  <section>uncertainty</section>
  <task>Write the report section about uncertainty. The data block contains the comments on which a large share of participants voted pass rather than agree or disagree. Describe what participants were unsure about and what might explain the hesitation. Ground every statement in cited comments.</task>
  <style>Neutral and factual. Two to four paragraphs. No recommendations.</style>
  <data/>
</reportSectionPrompt>`

	// ConsensusTemplate drives the section about comments all opinion groups support
	ConsensusTemplate = `<reportSectionPrompt>
  <section>group_informed_consensus</section>
  <task>Write the report section about common ground. The data block contains the comments that every opinion group tended to support, ranked by group-aware consensus. Describe the areas of broad agreement and what unites participants across groups. Ground every statement in cited comments.</task>
  <style>Neutral and factual. Two to four paragraphs. No recommendations.</style>
  <data/>
</reportSectionPrompt>`

	// GroupsTemplate drives the section about divisive comments
	GroupsTemplate = `<reportSectionPrompt>
  <section>groups</section>
  <task>Write the report section about the opinion groups. The data block contains the comments with the highest extremity, the ones that split the groups apart. Describe the main lines of disagreement and how the groups differ in their views. Do not take sides. Ground every statement in cited comments.</task>
  <style>Neutral and factual. Two to four paragraphs. No recommendations.</style>
  <data/>
</reportSectionPrompt>`

	// TopicsTemplate drives the topic-extraction step over the full conversation
	TopicsTemplate = `<topicExtractionPrompt>
  <task>Identify the main topics discussed in this conversation. The data block contains every comment. Name between three and eight topics, each with a short descriptive name. For each topic list the ids of the comments that belong to it. Every topic needs at least two citations. A comment may appear under more than one topic.</task>
  <data/>
</topicExtractionPrompt>`

	// TopicNarrativeTemplate drives one dynamically discovered topic section
	TopicNarrativeTemplate = `<reportSectionPrompt>
  <section>{{VAR:topic_name}}</section>
  <task>Write the report section about the topic named {{VAR:topic_name}}. The data block contains the comments participants submitted on this topic. Summarize the range of opinions, where participants agree and where they differ. Ground every statement in cited comments.</task>
  <style>Neutral and factual. One to three paragraphs. No recommendations.</style>
  <data/>
</reportSectionPrompt>`
)

// builtinTemplates maps fixed section names to their built-in templates.
var builtinTemplates = map[string]string{
	"uncertainty":              UncertaintyTemplate,
	"group_informed_consensus": ConsensusTemplate,
	"groups":                   GroupsTemplate,
	"topics":                   TopicsTemplate,
}

// ResolveTemplate returns the template text for a section. A configured
// file path wins over the built-in template; a configured path that cannot
// be read is an error rather than a silent fallback.
func ResolveTemplate(name, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read template %s for section %s: %w", path, name, err)
		}
		return string(data), nil
	}
	if tpl, ok := builtinTemplates[name]; ok {
		return tpl, nil
	}
	return "", fmt.Errorf("no built-in template for section %s", name)
}
