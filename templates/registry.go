// Package templates holds the named script templates used to steer generation
// and to score template compliance.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTemplates []byte

// Section is one expected part of a script with an inclusive word range.
type Section struct {
	Name     string `json:"name" yaml:"name"`
	MinWords int    `json:"min_words" yaml:"min_words"`
	MaxWords int    `json:"max_words" yaml:"max_words"`
}

// InRange reports whether words falls inside the section's inclusive range.
func (s Section) InRange(words int) bool {
	return words >= s.MinWords && words <= s.MaxWords
}

// Template is a named, ordered list of sections.
type Template struct {
	Name        string    `json:"name" yaml:"-"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Sections    []Section `json:"sections" yaml:"sections"`
}

// Registry is the read-only set of templates loaded at startup.
// It is safe for concurrent use because it is never mutated after construction.
type Registry struct {
	templates map[string]Template
}

// Default returns the registry built from the embedded default templates.
func Default() *Registry {
	r, err := Parse(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("templates: embedded defaults invalid: %v", err))
	}
	return r
}

// Load reads a registry from a YAML file. An empty path yields Default().
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("templates: %s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from YAML mapping template name to structure.
func Parse(data []byte) (*Registry, error) {
	var raw map[string]Template
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	r := &Registry{templates: make(map[string]Template, len(raw))}
	for name, t := range raw {
		if len(t.Sections) == 0 {
			return nil, fmt.Errorf("template %q has no sections", name)
		}
		for _, s := range t.Sections {
			if s.Name == "" {
				return nil, fmt.Errorf("template %q has a section without a name", name)
			}
			if s.MinWords < 0 || s.MaxWords < s.MinWords {
				return nil, fmt.Errorf("template %q section %q has invalid range [%d, %d]", name, s.Name, s.MinWords, s.MaxWords)
			}
		}
		t.Name = name
		r.templates[name] = t
	}
	return r, nil
}

// Get returns the template with the given name.
func (r *Registry) Get(name string) (Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names returns the template names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the registry as a name -> template mapping.
func (r *Registry) All() map[string]Template {
	out := make(map[string]Template, len(r.templates))
	for name, t := range r.templates {
		sections := make([]Section, len(t.Sections))
		copy(sections, t.Sections)
		t.Sections = sections
		out[name] = t
	}
	return out
}
