// Package validation scores scripts against readability, structure and
// engagement thresholds and against a template's section layout.
package validation

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/textmetrics"
)

// Thresholds are the pass limits for scored metrics. A zero value disables
// the corresponding check.
type Thresholds struct {
	MinFleschScore     float64
	MaxGradeLevel      float64
	MaxSentenceLength  float64
	MinWordCount       float64
	MinParagraphCount  float64
	MinQuestionCount   float64
	MinTransitionWords float64
}

// DefaultThresholds returns the standard quality limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFleschScore:     60,
		MaxGradeLevel:      12,
		MaxSentenceLength:  20,
		MinWordCount:       300,
		MinParagraphCount:  3,
		MinQuestionCount:   1,
		MinTransitionWords: 2,
	}
}

// InputError is a malformed request to a synchronous operation. It is
// user-correctable.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator scores scripts. It is safe for concurrent use.
type Validator struct {
	registry   *templates.Registry
	thresholds Thresholds
}

// New creates a Validator. A nil registry disables template compliance.
func New(registry *templates.Registry, thresholds Thresholds) *Validator {
	return &Validator{registry: registry, thresholds: thresholds}
}

// Check validates a script supplied by a caller, rejecting empty input.
func (v *Validator) Check(script, templateName string) (*Report, error) {
	if strings.TrimSpace(script) == "" {
		return nil, &InputError{Field: "script", Message: "must not be empty"}
	}
	return v.Validate(script, templateName), nil
}

// Validate scores script. Template compliance is computed only when
// templateName resolves in the registry; unknown names are ignored.
func (v *Validator) Validate(script, templateName string) *Report {
	r := textmetrics.ComputeReadability(script)
	s := textmetrics.ComputeStructure(script)
	e := textmetrics.ComputeEngagement(script)
	th := v.thresholds

	report := &Report{
		Readability: map[string]Metric{
			"flesch_score": atLeast(r.FleschScore, th.MinFleschScore),
			"grade_level":  atMost(r.GradeLevel, th.MaxGradeLevel),
			"reading_time": info(r.ReadingTime),
		},
		Structure: map[string]Metric{
			"paragraph_count":      atLeast(float64(s.ParagraphCount), th.MinParagraphCount),
			"sentence_count":       info(float64(s.SentenceCount)),
			"word_count":           atLeast(float64(s.WordCount), th.MinWordCount),
			"avg_paragraph_length": info(s.AvgParagraphLength),
			"avg_sentence_length":  atMost(s.AvgSentenceLength, th.MaxSentenceLength),
		},
		Engagement: map[string]Metric{
			"question_count":        atLeast(float64(e.QuestionCount), th.MinQuestionCount),
			"quote_count":           info(float64(e.QuoteCount)),
			"transition_word_count": atLeast(float64(e.TransitionWordCount), th.MinTransitionWords),
		},
	}

	if templateName != "" && v.registry != nil {
		if tmpl, ok := v.registry.Get(templateName); ok {
			report.TemplateCompliance = compliance(script, tmpl)
		}
	}
	return report
}

// compliance locates each section by name. Every section rescans the
// paragraphs from the start, so repeated names can attribute the same text
// to more than one section.
func compliance(script string, tmpl templates.Template) map[string]SectionResult {
	fold := cases.Fold()
	paragraphs := textmetrics.Paragraphs(script)
	folded := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		folded[i] = fold.String(p)
	}
	names := make([]string, len(tmpl.Sections))
	for i, sec := range tmpl.Sections {
		names[i] = fold.String(sec.Name)
	}

	mentionsSection := func(i int) bool {
		for _, n := range names {
			if strings.Contains(folded[i], n) {
				return true
			}
		}
		return false
	}

	out := make(map[string]SectionResult, len(tmpl.Sections))
	for si, sec := range tmpl.Sections {
		result := SectionResult{ExpectedRange: [2]int{sec.MinWords, sec.MaxWords}}

		start := -1
		for i := range paragraphs {
			if strings.Contains(folded[i], names[si]) {
				start = i
				break
			}
		}
		if start >= 0 {
			// Only the paragraphs after the heading paragraph count.
			words := 0
			for i := start + 1; i < len(paragraphs) && !mentionsSection(i); i++ {
				words += textmetrics.WordCount(paragraphs[i])
			}
			result.Present = true
			result.ActualLength = words
			result.LengthInRange = sec.InRange(words)
		}
		out[sec.Name] = result
	}
	return out
}

func atLeast(value, limit float64) Metric {
	if limit == 0 {
		return info(value)
	}
	return Metric{Value: value, Threshold: &limit, Pass: value >= limit}
}

func atMost(value, limit float64) Metric {
	if limit == 0 {
		return info(value)
	}
	return Metric{Value: value, Threshold: &limit, Pass: value <= limit}
}

func info(value float64) Metric {
	return Metric{Value: value, Pass: true}
}
