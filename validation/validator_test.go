package validation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K-Arthur/script-generator/templates"
)

const miniTemplates = `
mini:
  sections:
    - name: Intro
      min_words: 3
      max_words: 10
    - name: Body
      min_words: 5
      max_words: 20
    - name: Outro
      min_words: 2
      max_words: 10
echo:
  sections:
    - name: Story
      min_words: 1
      max_words: 50
    - name: Story End
      min_words: 1
      max_words: 50
`

const compliantScript = "Intro\n\nWelcome to the show today friends.\n\n" +
	"Body\n\nHere is the main part of the story we tell.\n\n" +
	"Outro\n\nThanks for watching."

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := templates.Parse([]byte(miniTemplates))
	require.NoError(t, err)
	return New(reg, DefaultThresholds())
}

func TestValidate_CompliantTemplate(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(compliantScript, "mini")

	require.Len(t, report.TemplateCompliance, 3)
	assert.Equal(t, SectionResult{Present: true, LengthInRange: true, ActualLength: 6, ExpectedRange: [2]int{3, 10}}, report.TemplateCompliance["Intro"])
	assert.Equal(t, 10, report.TemplateCompliance["Body"].ActualLength)
	assert.Equal(t, 3, report.TemplateCompliance["Outro"].ActualLength)
	assert.False(t, report.NeedsImprovement())
	assert.Empty(t, report.FailingSections())
}

func TestValidate_SectionOutOfRange(t *testing.T) {
	v := newTestValidator(t)
	script := "Intro\n\nWelcome to the show today friends.\n\nBody\n\nToo short.\n\nOutro\n\nThanks for watching."

	report := v.Validate(script, "mini")
	body := report.TemplateCompliance["Body"]
	assert.True(t, body.Present)
	assert.False(t, body.LengthInRange)
	assert.Equal(t, 2, body.ActualLength)
	assert.True(t, report.NeedsImprovement())
	assert.Equal(t, []string{"Body"}, report.FailingSections())
}

func TestValidate_MissingSection(t *testing.T) {
	v := newTestValidator(t)
	script := "Intro\n\nWelcome to the show today friends.\n\nBody\n\nHere is the main part of the story we tell."

	outro := v.Validate(script, "mini").TemplateCompliance["Outro"]
	assert.Equal(t, SectionResult{Present: false, LengthInRange: false, ActualLength: 0, ExpectedRange: [2]int{2, 10}}, outro)
}

func TestValidate_CaseInsensitiveSectionNames(t *testing.T) {
	v := newTestValidator(t)
	script := "INTRO\n\nWelcome to the show today friends.\n\nbody:\n\nHere is the main part of the story we tell.\n\nOutro\n\nThanks for watching."

	report := v.Validate(script, "mini")
	assert.Equal(t, 6, report.TemplateCompliance["Intro"].ActualLength)
	assert.True(t, report.TemplateCompliance["Body"].Present)
	assert.False(t, report.NeedsImprovement())
}

func TestValidate_HeadingParagraphNotCounted(t *testing.T) {
	v := newTestValidator(t)
	script := "Intro\nWelcome to the show today friends.\n\nBody\n\nHere is the main part of the story we tell.\n\nOutro\n\nThanks for watching."

	report := v.Validate(script, "mini")
	intro := report.TemplateCompliance["Intro"]
	assert.True(t, intro.Present)
	assert.Equal(t, 0, intro.ActualLength)
	assert.False(t, intro.LengthInRange)
	assert.True(t, report.NeedsImprovement())
}

func TestValidate_SectionScanRestartsPerSection(t *testing.T) {
	v := newTestValidator(t)
	script := "Story End\n\nEverything wrapped up nicely in the end."

	report := v.Validate(script, "echo")
	story := report.TemplateCompliance["Story"]
	end := report.TemplateCompliance["Story End"]
	assert.True(t, story.Present)
	assert.True(t, end.Present)
	assert.Equal(t, end.ActualLength, story.ActualLength)
}

func TestValidate_UnknownOrMissingTemplate(t *testing.T) {
	v := newTestValidator(t)
	for _, name := range []string{"", "no-such-template"} {
		report := v.Validate(compliantScript, name)
		assert.Nil(t, report.TemplateCompliance, "template %q", name)
		assert.False(t, report.NeedsImprovement())
	}

	assert.Nil(t, New(nil, DefaultThresholds()).Validate(compliantScript, "mini").TemplateCompliance)
}

func TestValidate_ThresholdFailures(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate("Hello world.", "")

	failures := report.Failures()
	var names []string
	for _, f := range failures {
		names = append(names, f.Group+"."+f.Metric)
	}
	assert.Contains(t, names, "structure.word_count")
	assert.Contains(t, names, "structure.paragraph_count")
	assert.Contains(t, names, "engagement.question_count")
	assert.NotContains(t, names, "readability.reading_time")

	for _, f := range failures {
		if f.Group == GroupStructure && f.Metric == "word_count" {
			assert.Equal(t, 2.0, f.Value)
			assert.Equal(t, 300.0, f.Threshold)
		}
	}

	// Threshold failures alone never trigger a revision.
	assert.False(t, report.NeedsImprovement())
}

func TestValidate_ZeroThresholdsDisableChecks(t *testing.T) {
	report := New(nil, Thresholds{}).Validate("Hello world.", "")
	assert.Empty(t, report.Failures())
	assert.Nil(t, report.Structure["word_count"].Threshold)
	assert.True(t, report.Structure["word_count"].Pass)
}

func TestValidate_Deterministic(t *testing.T) {
	v := newTestValidator(t)
	a, err := json.Marshal(v.Validate(compliantScript, "mini"))
	require.NoError(t, err)
	b, err := json.Marshal(v.Validate(compliantScript, "mini"))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestReport_JSONShape(t *testing.T) {
	v := newTestValidator(t)

	data, err := json.Marshal(v.Validate(compliantScript, ""))
	require.NoError(t, err)
	var plain map[string]any
	require.NoError(t, json.Unmarshal(data, &plain))
	assert.Contains(t, plain, "readability")
	assert.Contains(t, plain, "structure")
	assert.Contains(t, plain, "engagement")
	assert.NotContains(t, plain, "template_compliance")

	readingTime := plain["readability"].(map[string]any)["reading_time"].(map[string]any)
	assert.Nil(t, readingTime["threshold"])
	assert.Equal(t, true, readingTime["pass"])

	data, err = json.Marshal(v.Validate(compliantScript, "mini"))
	require.NoError(t, err)
	var templated map[string]any
	require.NoError(t, json.Unmarshal(data, &templated))
	intro := templated["template_compliance"].(map[string]any)["Intro"].(map[string]any)
	assert.Equal(t, []any{3.0, 10.0}, intro["expected_range"])
}

func TestCheck_RejectsEmptyScript(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Check("   ", "mini")
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "script", inputErr.Field)

	report, err := v.Check(compliantScript, "mini")
	require.NoError(t, err)
	assert.NotNil(t, report.TemplateCompliance)
}
