// Package ranking turns raw nearest-neighbor hits into the result list the
// engine returns: one hit per document, best score first.
package ranking

import (
	"sort"

	"github.com/okibi/tansa/internal/models"
)

// DedupeByDoc reduces hits to one per doc_id, keeping the hit with the
// strictly highest score. Exact ties keep the first hit seen; with the
// index ranking ties by insertion order this makes the fold deterministic,
// but the tie policy is implementation-defined, not a contract. Survivors
// come out in first-seen document order.
func DedupeByDoc(hits []models.SourceChunk) []models.SourceChunk {
	best := make(map[string]int, len(hits))
	out := make([]models.SourceChunk, 0, len(hits))
	for _, h := range hits {
		if i, seen := best[h.DocID]; seen {
			if h.Score > out[i].Score {
				out[i] = h
			}
			continue
		}
		best[h.DocID] = len(out)
		out = append(out, h)
	}
	return out
}

// RankTop sorts hits by score descending and truncates to k. The sort is
// stable, so equal scores preserve their incoming order.
func RankTop(hits []models.SourceChunk, k int) []models.SourceChunk {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < 0 {
		k = 0
	}
	if k < len(hits) {
		return hits[:k]
	}
	return hits
}
