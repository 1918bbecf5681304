package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quantfold/signalrun/internal/domain"
)

// buildNarrative renders a deterministic one-line explanation: the overall
// call followed by the top three pillars by score. Ties break on pillar name
// so identical inputs always produce identical text.
func buildNarrative(conviction float64, bias domain.Bias, contributions []domain.PillarContribution) string {
	ranked := make([]domain.PillarContribution, len(contributions))
	copy(ranked, contributions)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})

	top := ranked
	if len(top) > 3 {
		top = top[:3]
	}

	parts := make([]string, 0, len(top))
	for _, c := range top {
		part := fmt.Sprintf("%s %.1f %s", c.Name, c.Score, c.Bias)
		if c.IsPlaceholder {
			part += " (placeholder)"
		}
		parts = append(parts, part)
	}

	return fmt.Sprintf("%s at conviction %.2f; top pillars: %s",
		bias, conviction, strings.Join(parts, ", "))
}
