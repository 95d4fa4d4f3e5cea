package generation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/validation"
)

// generatePrompt builds the user prompt for a first draft. tmpl is nil when
// no known template was requested.
func generatePrompt(req Request, tmpl *templates.Template, minWords int) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Content))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Transform this into a %d+ word narrator script.\n", minWords)

	if tmpl != nil {
		fmt.Fprintf(&b, "\nFollow the %q template structure. Use these sections in order, each introduced by its name on its own line followed by a blank line:\n", tmpl.Name)
		for _, s := range tmpl.Sections {
			fmt.Fprintf(&b, "- %s (%d-%d words)\n", s.Name, s.MinWords, s.MaxWords)
		}
	}
	if c := strings.TrimSpace(req.Concept); c != "" {
		fmt.Fprintf(&b, "\nParticularly develop the %s section using the 'False Simplicity' technique - explain complex mechanics through everyday analogies.\n", c)
	}
	if p := strings.TrimSpace(req.PreviousTopic); p != "" {
		fmt.Fprintf(&b, "\nInclude one subtle callback to %s in the conclusion.\n", p)
	}
	return b.String()
}

// improvePrompt asks for a revision that fixes every failing metric and
// template section in report.
func improvePrompt(script string, report *validation.Report) string {
	var b strings.Builder
	b.WriteString("Original script:\n")
	b.WriteString(script)
	b.WriteString("\n\nThe script needs improvement in the following areas:\n")

	for _, f := range report.Failures() {
		fmt.Fprintf(&b, "- %s.%s: Current %s, Target %s\n", f.Group, f.Metric, formatValue(f.Value), formatValue(f.Threshold))
	}
	for _, name := range report.FailingSections() {
		s := report.TemplateCompliance[name]
		if !s.Present {
			fmt.Fprintf(&b, "- section %q: missing, Target %d-%d words\n", name, s.ExpectedRange[0], s.ExpectedRange[1])
			continue
		}
		fmt.Fprintf(&b, "- section %q: Current %d words, Target %d-%d words\n", name, s.ActualLength, s.ExpectedRange[0], s.ExpectedRange[1])
	}

	b.WriteString("\nPlease improve the script while maintaining its core message and style.")
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
