package validation

import (
	"sort"
)

// Metric group names used as report keys.
const (
	GroupReadability = "readability"
	GroupStructure   = "structure"
	GroupEngagement  = "engagement"
)

// Metric is one scored value. Threshold is nil when the metric is reported
// for information only; such metrics always pass.
type Metric struct {
	Value     float64  `json:"value"`
	Threshold *float64 `json:"threshold"`
	Pass      bool     `json:"pass"`
}

// SectionResult is the compliance of one template section.
type SectionResult struct {
	Present       bool   `json:"present"`
	LengthInRange bool   `json:"length_in_range"`
	ActualLength  int    `json:"actual_length"`
	ExpectedRange [2]int `json:"expected_range"`
}

// Report is the structured scoring of one script. TemplateCompliance is nil
// unless a known template was requested.
type Report struct {
	Readability        map[string]Metric        `json:"readability"`
	Structure          map[string]Metric        `json:"structure"`
	Engagement         map[string]Metric        `json:"engagement"`
	TemplateCompliance map[string]SectionResult `json:"template_compliance,omitempty"`
}

// Failure describes a metric that missed its threshold.
type Failure struct {
	Group     string
	Metric    string
	Value     float64
	Threshold float64
}

// NeedsImprovement reports whether the script should get a revision pass:
// template compliance is present and at least one section is out of range.
func (r *Report) NeedsImprovement() bool {
	for _, s := range r.TemplateCompliance {
		if !s.LengthInRange {
			return true
		}
	}
	return false
}

// Failures returns every failing threshold metric, ordered by group then name.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, g := range r.groups() {
		for _, name := range sortedKeys(g.metrics) {
			m := g.metrics[name]
			if m.Pass || m.Threshold == nil {
				continue
			}
			out = append(out, Failure{Group: g.name, Metric: name, Value: m.Value, Threshold: *m.Threshold})
		}
	}
	return out
}

// FailingSections returns the sorted names of sections whose length is out of range.
func (r *Report) FailingSections() []string {
	var out []string
	for name, s := range r.TemplateCompliance {
		if !s.LengthInRange {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

type group struct {
	name    string
	metrics map[string]Metric
}

func (r *Report) groups() []group {
	return []group{
		{GroupReadability, r.Readability},
		{GroupStructure, r.Structure},
		{GroupEngagement, r.Engagement},
	}
}

func sortedKeys(m map[string]Metric) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
