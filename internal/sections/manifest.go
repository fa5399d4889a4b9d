package sections

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/narravox/internal/config"
	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/prompts"
)

// Manifest declares extra report sections beyond the built-in set.
type Manifest struct {
	Sections []ManifestSection `yaml:"sections"`
}

// ManifestSection is one declared section. Template names the built-in
// template to reuse; template_file points at a prompt document on disk and
// wins when both are set.
type ManifestSection struct {
	Name         string   `yaml:"name"`
	Template     string   `yaml:"template"`
	TemplateFile string   `yaml:"template_file"`
	Filter       string   `yaml:"filter"`
	MinScore     *float64 `yaml:"min_score"`
	MaxTokens    int      `yaml:"max_tokens"`
	Temperature  float64  `yaml:"temperature"`
}

// reservedNames are section names the pipeline produces on its own. A
// manifest may not shadow them.
var reservedNames = map[string]bool{
	"uncertainty":              true,
	"group_informed_consensus": true,
	"groups":                   true,
	"topics":                   true,
}

// LoadManifest reads extra section specs from a YAML manifest.
func LoadManifest(path string, cfg *config.Config) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sections: read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("sections: parse manifest: %w", err)
	}

	seen := make(map[string]bool)
	specs := make([]Spec, 0, len(manifest.Sections))
	for _, section := range manifest.Sections {
		if section.Name == "" {
			return nil, fmt.Errorf("sections: manifest section without a name")
		}
		if reservedNames[section.Name] || strings.HasPrefix(section.Name, "topic_") {
			return nil, fmt.Errorf("sections: manifest section %q shadows a built-in section", section.Name)
		}
		if seen[section.Name] {
			return nil, fmt.Errorf("sections: duplicate manifest section %q", section.Name)
		}
		seen[section.Name] = true

		template, err := prompts.ResolveTemplate(section.Template, section.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("sections: section %q: %w", section.Name, err)
		}

		predicate, err := predicateFor(section.Filter, section.MinScore, cfg)
		if err != nil {
			return nil, fmt.Errorf("sections: section %q: %w", section.Name, err)
		}

		specs = append(specs, Spec{
			Name:        section.Name,
			Template:    template,
			System:      prompts.DefaultSystemInstruction,
			Predicate:   predicate,
			MaxTokens:   section.MaxTokens,
			Temperature: section.Temperature,
		})
	}
	return specs, nil
}

func predicateFor(filter string, minScore *float64, cfg *config.Config) (conversation.Predicate, error) {
	threshold := func(fallback float64) float64 {
		if minScore != nil {
			return *minScore
		}
		return fallback
	}

	switch filter {
	case "", "all":
		return conversation.All(), nil
	case "consensus":
		return conversation.MinConsensus(threshold(cfg.Sections.ConsensusMinScore)), nil
	case "uncertainty":
		return conversation.UncertaintyShare(threshold(cfg.Sections.UncertaintyMinShare)), nil
	case "divisive":
		return conversation.Divisive(threshold(cfg.Sections.DivisiveMinExtremity)), nil
	default:
		return nil, fmt.Errorf("unknown filter %q", filter)
	}
}
