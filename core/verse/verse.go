// Package verse scores generated battle verses.
//
// The analysis is a cheap text heuristic, not a phonetic model: rhymes are
// approximated by comparing fixed-length suffixes of each line's last word
// and syllables by counting vowel groups.
package verse

import (
	"math"
	"strings"
	"unicode"
)

type Reaction string

const (
	ReactionCrickets Reaction = "crickets"
	ReactionNods     Reaction = "nods"
	ReactionCheers   Reaction = "cheers"
	ReactionRoars    Reaction = "roars"
)

const (
	rhymeWeight        = 0.30
	vocabularyWeight   = 0.25
	syllableWeight     = 0.15
	wordLengthWeight   = 0.15
	alliterationWeight = 0.15

	// rhymeSuffixLength is how many trailing letters two line endings must
	// share to count as a rhyme.
	rhymeSuffixLength = 2
	// Averages at or above these saturate their component.
	saturatingSyllables  = 2.0
	saturatingWordLength = 6.0
	// saturatingAlliterationsPerLine saturates the alliteration component.
	saturatingAlliterationsPerLine = 1.0
)

type Analysis struct {
	Lines              int      `json:"lines"`
	Words              int      `json:"words"`
	RhymeDensity       float64  `json:"rhymeDensity"`
	VocabularyRichness float64  `json:"vocabularyRichness"`
	AverageSyllables   float64  `json:"averageSyllables"`
	AverageWordLength  float64  `json:"averageWordLength"`
	Alliterations      int      `json:"alliterations"`
	Score              float64  `json:"score"`
	Reaction           Reaction `json:"reaction"`
}

// Analyze scores text on a 0-100 scale. Text without any words yields the
// zero Analysis.
func Analyze(text string) Analysis {
	lines := tokenize(text)

	var (
		words         []string
		endings       []string
		alliterations int
	)
	for _, line := range lines {
		words = append(words, line...)
		endings = append(endings, line[len(line)-1])
		alliterations += countAlliterations(line)
	}
	if len(words) == 0 {
		return Analysis{}
	}

	unique := make(map[string]struct{}, len(words))
	totalSyllables, totalLength := 0, 0
	for _, word := range words {
		unique[word] = struct{}{}
		totalSyllables += CountSyllables(word)
		totalLength += len([]rune(word))
	}

	analysis := Analysis{
		Lines:              len(lines),
		Words:              len(words),
		RhymeDensity:       rhymeDensity(endings),
		VocabularyRichness: float64(len(unique)) / float64(len(words)),
		AverageSyllables:   float64(totalSyllables) / float64(len(words)),
		AverageWordLength:  float64(totalLength) / float64(len(words)),
		Alliterations:      alliterations,
	}

	composite := rhymeWeight*analysis.RhymeDensity +
		vocabularyWeight*analysis.VocabularyRichness +
		syllableWeight*saturate(analysis.AverageSyllables, saturatingSyllables) +
		wordLengthWeight*saturate(analysis.AverageWordLength, saturatingWordLength) +
		alliterationWeight*saturate(float64(alliterations)/float64(len(lines)), saturatingAlliterationsPerLine)

	analysis.Score = math.Round(composite*1000) / 10
	analysis.Reaction = ReactionFor(analysis.Score)
	return analysis
}

// ReactionFor maps a 0-100 score onto the four crowd reaction tiers.
func ReactionFor(score float64) Reaction {
	switch {
	case score >= 75:
		return ReactionRoars
	case score >= 50:
		return ReactionCheers
	case score >= 25:
		return ReactionNods
	default:
		return ReactionCrickets
	}
}

// CountSyllables approximates syllables as vowel groups, dropping a silent
// trailing "e". Every word has at least one syllable.
func CountSyllables(word string) int {
	word = strings.ToLower(word)

	count := 0
	previousVowel := false
	for _, r := range word {
		vowel := isVowel(r) || r == 'y'
		if vowel && !previousVowel {
			count++
		}
		previousVowel = vowel
	}

	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	return max(count, 1)
}

// tokenize splits text into non-empty lines of normalised words.
func tokenize(text string) [][]string {
	var lines [][]string
	for _, rawLine := range strings.Split(text, "\n") {
		var line []string
		for _, field := range strings.FieldsFunc(rawLine, isSeparator) {
			word := strings.Trim(strings.ToLower(field), "'")
			if word != "" {
				line = append(line, word)
			}
		}
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

func rhymeDensity(endings []string) float64 {
	matches, comparisons := 0, 0
	for i := range endings {
		for _, offset := range []int{1, 2} {
			if i+offset >= len(endings) {
				continue
			}
			comparisons++
			if suffix(endings[i]) == suffix(endings[i+offset]) {
				matches++
			}
		}
	}
	if comparisons == 0 {
		return 0
	}
	return float64(matches) / float64(comparisons)
}

func suffix(word string) string {
	runes := []rune(word)
	if len(runes) <= rhymeSuffixLength {
		return word
	}
	return string(runes[len(runes)-rhymeSuffixLength:])
}

func countAlliterations(line []string) int {
	count := 0
	for i := 1; i < len(line); i++ {
		a, b := []rune(line[i-1])[0], []rune(line[i])[0]
		if a == b && unicode.IsLetter(a) && !isVowel(a) {
			count++
		}
	}
	return count
}

func saturate(value, limit float64) float64 {
	return min(value/limit, 1)
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiou", r)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}
