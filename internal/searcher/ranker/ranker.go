// Package ranker accumulates additive per-document scores and orders them.
package ranker

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Scores maps a document handle to its accumulated score.
type Scores map[uint32]float64

// AddAll adds w to every handle in bm. A nil bitmap is ignored.
func (s Scores) AddAll(bm *roaring.Bitmap, w float64) {
	if bm == nil || w == 0 {
		return
	}
	it := bm.Iterator()
	for it.HasNext() {
		s[it.Next()] += w
	}
}

type ScoredDoc struct {
	Handle uint32  `json:"-"`
	DocID  string  `json:"doc_id"`
	Score  float64 `json:"score"`
}

// Rank resolves handles with docID, rounds scores to four decimals and sorts
// by descending score then ascending id. Handles docID cannot resolve are
// dropped.
func Rank(scores Scores, docID func(h uint32) (string, bool)) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for h, score := range scores {
		id, ok := docID(h)
		if !ok {
			continue
		}
		result = append(result, ScoredDoc{
			Handle: h,
			DocID:  id,
			Score:  math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Page returns ranked[offset:offset+limit], clamped to the slice bounds.
func Page(ranked []ScoredDoc, offset, limit int) []ScoredDoc {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ranked) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[offset:end]
}
