package query

import (
	"math"
	"sort"

	"github.com/sitechat/backend/internal/vector/milvus"
)

// selectMatches decides which similarity matches become generation context.
//
// Soft-threshold policy: matches at or above threshold win, sorted by
// descending score and capped to limit. When nothing clears the bar the
// best-available matches are used instead, so the system degrades rather
// than going silent. An empty result means no knowledge at all; the caller
// answers with the tenant's fallback message and never calls the generator.
func selectMatches(matches []milvus.Match, threshold float64, limit int) []milvus.Match {
	usable := make([]milvus.Match, 0, len(matches))
	for _, m := range matches {
		if m.Content == "" || math.IsNaN(m.Similarity) {
			continue
		}
		usable = append(usable, m)
	}

	if len(usable) == 0 {
		return nil
	}

	above := make([]milvus.Match, 0, len(usable))
	for _, m := range usable {
		if m.Similarity >= threshold {
			above = append(above, m)
		}
	}

	selected := above
	if len(selected) == 0 {
		selected = usable
	}

	// Stable sort keeps the store's relative order for tied scores.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Similarity > selected[j].Similarity
	})

	if len(selected) > limit {
		selected = selected[:limit]
	}

	return selected
}
