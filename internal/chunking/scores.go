package chunking

import (
	"strings"
	"unicode"
)

// semanticDensity combines lexical diversity with sentence-length
// normalization: (unique/total + min(1, avg_sentence_len/20)) / 2.
func semanticDensity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	diversity := float64(len(unique)) / float64(len(words))

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return diversity / 2
	}
	avgLen := float64(len(words)) / float64(len(sentences))
	lengthNorm := avgLen / 20
	if lengthNorm > 1 {
		lengthNorm = 1
	}

	return (diversity + lengthNorm) / 2
}

// importance starts at 0.5 and adds bonuses for headings, code, chunk
// length relative to the configured size, and numeric content. Clamped
// to [0, 1].
func importance(c *Chunk, chunkSize int) float64 {
	score := 0.5

	if c.SectionKind == SectionHeading || c.HeadingLevel > 0 {
		score += 0.3
	}
	if c.SectionKind == SectionCode {
		score += 0.2
	}

	if chunkSize > 0 {
		ratio := float64(len(c.Content)) / float64(chunkSize)
		if ratio > 1 {
			ratio = 1
		}
		score += 0.2 * ratio
	}

	if numericTokens(c.Content) >= 5 {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// numericTokens counts whitespace-separated tokens that contain a digit.
func numericTokens(text string) int {
	count := 0
	for _, tok := range strings.Fields(text) {
		for _, r := range tok {
			if unicode.IsDigit(r) {
				count++
				break
			}
		}
	}
	return count
}

// wordSet lowercases and dedupes the words of s.
func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[strings.ToLower(strings.Trim(w, ".,!?;:"))] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|; empty sets compare as 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
