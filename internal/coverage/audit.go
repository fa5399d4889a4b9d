package coverage

import (
	"sort"

	"github.com/narravox/pkg/models"
)

// Citations walks a narrative and returns every cited comment id,
// deduplicated and sorted.
func Citations(resp *models.NarrativeResponse) []int {
	seen := make(map[int]struct{})
	for _, paragraph := range resp.Paragraphs {
		for _, sentence := range paragraph.Sentences {
			for _, clause := range sentence.Clauses {
				for _, id := range clause.Citations {
					seen[id] = struct{}{}
				}
			}
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Audit reconciles the citations in a narrative against the comments that
// were actually offered to the model. A citation outside the offered set is
// fabricated, never counted as cited. The percentage is nil when no comments
// survived filtering, since zero offered comments makes coverage undefined.
func Audit(resp *models.NarrativeResponse, filteredIDs []int, totalComments int) models.CoverageMetrics {
	offered := make(map[int]struct{}, len(filteredIDs))
	for _, id := range filteredIDs {
		offered[id] = struct{}{}
	}

	metrics := models.CoverageMetrics{
		TotalComments:    totalComments,
		FilteredComments: len(offered),
	}

	var fabricated []int
	cited := 0
	for _, id := range Citations(resp) {
		if _, ok := offered[id]; ok {
			cited++
		} else {
			fabricated = append(fabricated, id)
		}
	}

	metrics.CitedComments = cited
	metrics.OmittedComments = len(offered) - cited
	metrics.FabricatedCitations = fabricated
	if len(offered) > 0 {
		pct := float64(cited) / float64(len(offered)) * 100
		metrics.CoveragePercentage = &pct
	}
	return metrics
}
