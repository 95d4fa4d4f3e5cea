// Package textmetrics computes readability, structure and engagement scores
// for narration scripts. All functions are pure and total: any string,
// including the empty string, yields finite values.
package textmetrics

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// narrationWPM is the speaking rate used for reading time estimates.
const narrationWPM = 150.0

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t\r]*\n`)
	sentenceEndRe    = regexp.MustCompile(`[.!?]+(?:["'”’)\]]*)(?:\s|$)`)
)

// transitionPhrases are matched case-insensitively on word boundaries.
var transitionPhrases = []string{
	"however", "therefore", "moreover", "furthermore", "meanwhile",
	"consequently", "nevertheless", "similarly", "likewise", "finally",
	"first", "second", "next", "then", "ultimately", "instead",
	"for example", "for instance", "in addition", "in contrast",
	"as a result", "on the other hand", "in other words", "after all",
}

var transitionRes = compileTransitions(transitionPhrases)

func compileTransitions(phrases []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		res[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`) + `\b`)
	}
	return res
}

// Readability holds reading-ease scores.
type Readability struct {
	FleschScore float64 `json:"flesch_score"`
	GradeLevel  float64 `json:"grade_level"`
	ReadingTime float64 `json:"reading_time"` // minutes at narration speed
}

// Structure holds counts describing the layout of a text.
type Structure struct {
	ParagraphCount     int     `json:"paragraph_count"`
	SentenceCount      int     `json:"sentence_count"`
	WordCount          int     `json:"word_count"`
	AvgParagraphLength float64 `json:"avg_paragraph_length"` // words per paragraph
	AvgSentenceLength  float64 `json:"avg_sentence_length"`  // words per sentence
}

// Engagement counts devices that keep a listener involved.
type Engagement struct {
	QuestionCount       int `json:"question_count"`
	QuoteCount          int `json:"quote_count"`
	TransitionWordCount int `json:"transition_word_count"`
}

// ComputeReadability returns Flesch reading ease, Flesch-Kincaid grade level
// and the estimated narration time of text.
func ComputeReadability(text string) Readability {
	words := Words(text)
	w := floor1(len(words))
	s := floor1(SentenceCount(text))
	syllables := 0
	for _, word := range words {
		syllables += Syllables(word)
	}
	wordsPerSentence := w / s
	syllablesPerWord := float64(syllables) / w

	return Readability{
		FleschScore: round2(206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord),
		GradeLevel:  round2(0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59),
		ReadingTime: round2(float64(len(words)) / narrationWPM),
	}
}

// ComputeStructure returns paragraph, sentence and word counts with averages.
func ComputeStructure(text string) Structure {
	words := len(Words(text))
	sentences := SentenceCount(text)
	paragraphs := len(Paragraphs(text))
	return Structure{
		ParagraphCount:     paragraphs,
		SentenceCount:      sentences,
		WordCount:          words,
		AvgParagraphLength: round2(float64(words) / floor1(paragraphs)),
		AvgSentenceLength:  round2(float64(words) / floor1(sentences)),
	}
}

// ComputeEngagement counts questions, quotations and transition words.
func ComputeEngagement(text string) Engagement {
	transitions := 0
	for _, re := range transitionRes {
		transitions += len(re.FindAllStringIndex(text, -1))
	}
	return Engagement{
		QuestionCount:       strings.Count(text, "?"),
		QuoteCount:          countQuotes(text),
		TransitionWordCount: transitions,
	}
}

// Paragraphs splits text on blank lines and drops paragraphs that are empty
// after trimming.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range paragraphBreakRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Words splits text on whitespace.
func Words(text string) []string {
	return strings.Fields(text)
}

// WordCount is len(Words(text)).
func WordCount(text string) int {
	return len(Words(text))
}

// SentenceCount counts sentence terminators. Trailing text without a
// terminator counts as one more sentence.
func SentenceCount(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	ends := sentenceEndRe.FindAllStringIndex(trimmed, -1)
	count := len(ends)
	last := 0
	if count > 0 {
		last = ends[count-1][1]
	}
	if hasLetterOrDigit(trimmed[last:]) {
		count++
	}
	return count
}

// Syllables estimates the syllable count of a single word by counting vowel
// groups, discounting a silent trailing "e". Every word with a letter has at
// least one syllable.
func Syllables(word string) int {
	word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) }))
	if word == "" {
		return 0
	}
	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// countQuotes counts quoted passages: straight double quotes in pairs plus
// opening curly quotes.
func countQuotes(text string) int {
	return strings.Count(text, `"`)/2 + strings.Count(text, "“")
}

func floor1(n int) float64 {
	if n < 1 {
		return 1
	}
	return float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
