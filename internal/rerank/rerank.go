// Package rerank recomputes a workorder's display order from triage status
// and persona-embedding similarity.
package rerank

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/embed"
	"github.com/sells-group/leads-cli/internal/model"
)

// Rerank derives a new total order for a workorder's leads and returns their
// IDs in display sequence; position in the slice is the new 0-based display
// order. This is a full recomputation from current status and embeddings,
// not an incremental patch.
//
// Embedded leads order as: unchecked sorted by maximum cosine similarity to
// the converted exemplars (descending), then converted, in-progress, and
// failed, each keeping its prior relative order. Leads without an embedding
// cannot participate in similarity scoring; rather than dropping them they
// are appended after all embedded leads, ordered by prior display order.
func Rerank(leads []model.Lead) []string {
	var unchecked, converted, inProgress, failed, unembedded []model.Lead

	vectors := make(map[string][]float32, len(leads))
	for _, l := range leads {
		if !l.HasEmbedding() {
			unembedded = append(unembedded, l)
			continue
		}
		vec, err := embed.BytesToVector(l.Embedding)
		if err != nil {
			zap.L().Warn("rerank: undecodable embedding",
				zap.String("lead", l.ID),
				zap.Error(err),
			)
			unembedded = append(unembedded, l)
			continue
		}
		vectors[l.ID] = vec

		switch l.Status {
		case model.StatusConverted:
			converted = append(converted, l)
		case model.StatusFailed:
			failed = append(failed, l)
		case model.StatusInProgress:
			inProgress = append(inProgress, l)
		default:
			unchecked = append(unchecked, l)
		}
	}

	// Score every unchecked lead against the converted exemplars. No
	// exemplars means similarity 0 across the board.
	exemplars := make([][]float32, 0, len(converted))
	for _, l := range converted {
		exemplars = append(exemplars, vectors[l.ID])
	}
	scores := make(map[string]float64, len(unchecked))
	for _, l := range unchecked {
		best := 0.0
		if len(exemplars) > 0 {
			// Start below any attainable cosine so all-negative maxima
			// still order by their true value instead of collapsing to 0.
			best = math.Inf(-1)
			for _, ex := range exemplars {
				if sim := Cosine(vectors[l.ID], ex); sim > best {
					best = sim
				}
			}
		}
		scores[l.ID] = best
	}

	sort.SliceStable(unchecked, func(i, j int) bool {
		return scores[unchecked[i].ID] > scores[unchecked[j].ID]
	})

	sortByDisplayOrder(converted)
	sortByDisplayOrder(inProgress)
	sortByDisplayOrder(failed)
	sortByDisplayOrder(unembedded)

	out := make([]string, 0, len(leads))
	for _, group := range [][]model.Lead{unchecked, converted, inProgress, failed, unembedded} {
		for _, l := range group {
			out = append(out, l.ID)
		}
	}
	return out
}

// sortByDisplayOrder keeps a group's prior relative order; leads with no
// display order sort after all numbered ones.
func sortByDisplayOrder(ls []model.Lead) {
	sort.SliceStable(ls, func(i, j int) bool {
		a, b := ls[i].DisplayOrder, ls[j].DisplayOrder
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// Cosine returns the cosine similarity of two vectors. A zero-norm vector
// compares as 0 against anything, never an error.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
