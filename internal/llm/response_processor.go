package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProcessorResult contains the result of LLM response processing
type ProcessorResult struct {
	ParsedData   interface{} `json:"parsed_data"`
	Repair       RepairStats `json:"repair"`
	OriginalJSON string      `json:"-"` // Don't marshal raw JSON
	RepairedJSON string      `json:"-"` // Don't marshal repaired JSON
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ProcessResponse processes a raw LLM response into target, attempting
// repair if needed
func ProcessResponse(raw string, target interface{}) (ProcessorResult, error) {
	result := ProcessorResult{
		OriginalJSON: raw,
		Success:      false,
	}

	// Extract JSON from response (handle cases where LLM adds explanatory text)
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		result.Error = "no JSON found in LLM response"
		log.Debug().Str("response_head", truncateForLog(raw, 200)).Msg("No JSON found in LLM response")
		return result, fmt.Errorf("no JSON found in response")
	}

	// Attempt to repair JSON if needed
	repairedJSON, repairStats, err := RepairJSON(jsonStr)
	result.Repair = repairStats
	result.RepairedJSON = repairedJSON

	// Log repair statistics if repair was attempted
	if repairStats.Repaired {
		log.Debug().
			Strs("strategies", repairStats.Strategies).
			Dur("repair_time", repairStats.RepairTime).
			Msg("JSON repair applied")
	}

	if err != nil {
		result.Error = fmt.Sprintf("JSON repair failed: %v", err)
		log.Debug().
			Err(err).
			Str("original_json", truncateForLog(jsonStr, 500)).
			Str("repaired_json", truncateForLog(repairedJSON, 500)).
			Msg("JSON repair failed")
		return result, err
	}

	// Parse the repaired JSON
	if err := json.Unmarshal([]byte(repairedJSON), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		log.Debug().
			Err(err).
			Str("final_json", truncateForLog(repairedJSON, 500)).
			Msg("JSON parsing failed after repair")
		return result, err
	}

	result.ParsedData = target
	result.Success = true

	return result, nil
}

// extractJSON extracts JSON content from mixed text/JSON responses
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// If it starts with { or [, assume it's pure JSON
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// Look for JSON blocks marked with ```json or ```
	if strings.Contains(raw, "```") {
		// Extract from code blocks
		lines := strings.Split(raw, "\n")
		var jsonLines []string
		inCodeBlock := false

		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inCodeBlock = !inCodeBlock
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}

		if len(jsonLines) > 0 {
			return strings.Join(jsonLines, "\n")
		}
	}

	// Look for the first { and try to find matching }
	startIdx := strings.Index(raw, "{")
	if startIdx == -1 {
		// Try array format
		startIdx = strings.Index(raw, "[")
		if startIdx == -1 {
			return ""
		}
	}

	// Find the matching closing brace/bracket
	openChar := raw[startIdx]
	closeChar := '}'
	if openChar == '[' {
		closeChar = ']'
	}

	count := 0
	for i := startIdx; i < len(raw); i++ {
		if raw[i] == byte(openChar) {
			count++
		} else if raw[i] == byte(closeChar) {
			count--
			if count == 0 {
				return raw[startIdx : i+1]
			}
		}
	}

	// If we couldn't find a complete JSON structure, return from start to end
	return raw[startIdx:]
}

// truncateForLog truncates text for logging purposes
func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
