package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what it took to turn a model response into valid JSON.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	Strategies    []string      `json:"strategies,omitempty"`
	RepairTime    time.Duration `json:"repair_time"`
	Repaired      bool          `json:"repaired"`
}

// A repairStep fixes one class of defect models introduce into JSON output.
// Steps run in order until the document parses; failed steps cost nothing.
type repairStep struct {
	name  string
	apply func(string) string
}

// repairSteps covers the defects seen in narrative and topic responses:
// dangling commas after the last clause, raw quotes inside clause text,
// responses truncated at the token limit, commentary slipped between
// fields, and object keys or strings written in a JavaScript register.
var repairSteps = []repairStep{
	{name: "trailing_commas", apply: stripTrailingCommas},
	{name: "quotes_in_text", apply: escapeQuotesInText},
	{name: "truncation", apply: closeOpenStructures},
	{name: "comments", apply: stripComments},
	{name: "bare_keys", apply: quoteBareKeys},
	{name: "single_quotes", apply: doubleQuoteStrings},
}

// RepairJSON returns a valid-JSON version of raw, trying targeted fixes
// first and the jsonrepair library last. Already valid input passes through
// untouched.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	finish := func(s string) string {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(start)
		return s
	}

	if json.Valid([]byte(raw)) {
		return finish(raw), stats, nil
	}

	stats.Repaired = true
	repaired := raw
	for _, step := range repairSteps {
		next := step.apply(repaired)
		if next != repaired {
			stats.Strategies = append(stats.Strategies, step.name)
			repaired = next
		}
		if json.Valid([]byte(repaired)) {
			return finish(repaired), stats, nil
		}
	}

	if fixed, err := jsonrepair.JSONRepair(repaired); err == nil && json.Valid([]byte(fixed)) {
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		return finish(fixed), stats, nil
	}

	return finish(repaired), stats, fmt.Errorf("json still invalid after %d repair steps", len(stats.Strategies))
}

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	quotesInTextPattern  = regexp.MustCompile(`("text":\s*")([^"]*)"([^"]*)"([^"]*)("[\s,}])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	singleQuotePattern   = regexp.MustCompile(`'([^']*)'`)
	blockCommentPattern  = regexp.MustCompile(`/\*.*?\*/`)
)

func stripTrailingCommas(s string) string {
	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

// escapeQuotesInText handles the most common quoting defect: one pair of
// raw quotes inside a clause text value.
func escapeQuotesInText(s string) string {
	return quotesInTextPattern.ReplaceAllString(s, `$1$2\"$3\"$4$5`)
}

// closeOpenStructures appends the closers a truncated response is missing,
// innermost first. Braces and brackets inside string values do not count.
func closeOpenStructures(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// stripComments drops // and /* */ commentary. A // inside a URL stays.
func stripComments(s string) string {
	if !strings.Contains(s, "//") && !strings.Contains(s, "/*") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 && (idx == 0 || line[idx-1] != ':') {
			lines[i] = line[:idx]
		}
	}
	return blockCommentPattern.ReplaceAllString(strings.Join(lines, "\n"), "")
}

func quoteBareKeys(s string) string {
	return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
}

func doubleQuoteStrings(s string) string {
	return singleQuotePattern.ReplaceAllString(s, `"$1"`)
}
