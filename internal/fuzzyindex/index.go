// Package fuzzyindex ranks pattern canonical strings against an
// operator's search query. It wraps github.com/sahilm/fuzzy, which
// already appears as a dependency of several sibling repos in the
// corpus (teradata-labs-loom among them), and whose Match type
// (Str, Index, MatchedIndexes, Score) maps onto the
// (pattern_id, score, matched_positions) contract once Search converts
// MatchedIndexes to byte offsets.
package fuzzyindex

import "github.com/sahilm/fuzzy"

// Result is one ranked match against the query.
type Result struct {
	// Index is the position of the matched string in the source slice
	// passed to Search, i.e. the pattern's position in the snapshot.
	Index int
	// MatchedPositions are byte offsets into the canonical string that
	// the query matched, for highlighting. sahilm/fuzzy reports these
	// as rune indexes; Search converts them, since canonical strings
	// are not ASCII-only (normalize.Normalize passes non-matched runes
	// like accented letters through untouched), so a rune index would
	// misalign against a byte-indexed highlight.
	MatchedPositions []int
	Score            int
}

// source adapts a plain []string to fuzzy.Source.
type source []string

func (s source) String(i int) string { return s[i] }
func (s source) Len() int            { return len(s) }

// Search ranks canonicals against query. An empty query returns every
// candidate in its original (snapshot) order with score 0 and no
// matched positions, rather than delegating an empty pattern to the
// library (whose behavior for "" is unspecified by its docs).
func Search(query string, canonicals []string) []Result {
	if query == "" {
		out := make([]Result, len(canonicals))
		for i := range canonicals {
			out[i] = Result{Index: i}
		}
		return out
	}

	matches := fuzzy.FindFrom(query, source(canonicals))

	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{
			Index:            m.Index,
			MatchedPositions: runeToByteOffsets(canonicals[m.Index], m.MatchedIndexes),
			Score:            m.Score,
		}
	}
	return out
}

// runeToByteOffsets converts rune indexes into s to byte offsets,
// since s may contain multi-byte UTF-8 runes.
func runeToByteOffsets(s string, runeIdx []int) []int {
	if len(runeIdx) == 0 {
		return nil
	}
	byteOf := make([]int, 0, len(s)+1)
	for i := range s {
		byteOf = append(byteOf, i)
	}
	byteOf = append(byteOf, len(s))

	out := make([]int, len(runeIdx))
	for i, r := range runeIdx {
		if r < 0 {
			out[i] = 0
			continue
		}
		if r >= len(byteOf) {
			out[i] = len(s)
			continue
		}
		out[i] = byteOf[r]
	}
	return out
}
