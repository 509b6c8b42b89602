// Package fuzzy implements edit-distance matching over an index vocabulary.
//
// Cost: Distance is O(|a|·|b|) time and space (full matrix). Expand runs
// Distance against every vocabulary term whose rune length lies within
// maxDistance of the query term, so one expansion costs
// O(|length window of the vocabulary| · L²). Callers bound the number of
// expanded query terms per search; the vocabulary scan itself is linear.
package fuzzy

import "unicode/utf8"

// DefaultMaxDistance is the largest edit distance accepted as a match.
const DefaultMaxDistance = 2

// Match is a vocabulary term accepted for a query term.
type Match struct {
	Term       string
	Distance   int
	Similarity float64
}

// Distance returns the Levenshtein distance between a and b counted in runes
// (insertions, deletions and substitutions each cost 1).
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if ra[i-1] == rb[j-1] {
				dp[i][j] = dp[i-1][j-1]
				continue
			}
			dp[i][j] = 1 + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
		}
	}
	return dp[m][n]
}

// Similarity is 1 - distance/max(len(a), len(b)). Two empty strings are
// identical and score 1.
func Similarity(a, b string) float64 {
	return similarity(Distance(a, b), utf8.RuneCountInString(a), utf8.RuneCountInString(b))
}

func similarity(distance, la, lb int) float64 {
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(longest)
}

// Vocabulary yields every indexed term whose rune length is in [minLen, maxLen].
type Vocabulary interface {
	TermsWithLength(minLen, maxLen int, fn func(term string))
}

// Expand returns every vocabulary term within maxDistance of term, including
// term itself when indexed. Order follows the vocabulary iteration order.
func Expand(term string, vocab Vocabulary, maxDistance int) []Match {
	if maxDistance < 0 {
		maxDistance = 0
	}
	termLen := utf8.RuneCountInString(term)
	var matches []Match
	vocab.TermsWithLength(termLen-maxDistance, termLen+maxDistance, func(candidate string) {
		d := Distance(term, candidate)
		if d > maxDistance {
			return
		}
		matches = append(matches, Match{
			Term:       candidate,
			Distance:   d,
			Similarity: similarity(d, termLen, utf8.RuneCountInString(candidate)),
		})
	})
	return matches
}
