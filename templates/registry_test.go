package templates

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_ContainsBuiltins(t *testing.T) {
	r := Default()
	for _, name := range []string{"documentary", "educational", "storytelling"} {
		tmpl, ok := r.Get(name)
		if !ok {
			t.Fatalf("missing builtin template %q", name)
		}
		if tmpl.Name != name {
			t.Errorf("Name = %q, want %q", tmpl.Name, name)
		}
		if len(tmpl.Sections) == 0 {
			t.Errorf("template %q has no sections", name)
		}
	}

	doc, _ := r.Get("documentary")
	if doc.Sections[0].Name != "Introduction" {
		t.Errorf("first documentary section = %q, want Introduction", doc.Sections[0].Name)
	}
}

func TestRegistry_Names_Sorted(t *testing.T) {
	names := Default().Names()
	want := []string{"documentary", "educational", "storytelling"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	r := Default()
	all := r.All()
	all["documentary"].Sections[0].Name = "mutated"

	doc, _ := r.Get("documentary")
	if doc.Sections[0].Name != "Introduction" {
		t.Error("All() exposed internal section slice")
	}
}

func TestSection_InRange(t *testing.T) {
	s := Section{Name: "Intro", MinWords: 10, MaxWords: 20}
	cases := map[int]bool{9: false, 10: true, 15: true, 20: true, 21: false}
	for words, want := range cases {
		if got := s.InRange(words); got != want {
			t.Errorf("InRange(%d) = %v, want %v", words, got, want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no sections":  "empty:\n  sections: []\n",
		"nameless":     "x:\n  sections:\n    - min_words: 1\n      max_words: 2\n",
		"bad range":    "x:\n  sections:\n    - name: A\n      min_words: 5\n      max_words: 2\n",
		"invalid yaml": "x: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	body := "short:\n  sections:\n    - name: Opening\n      min_words: 5\n      max_words: 50\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := r.Get("short"); !ok {
		t.Error("custom template not loaded")
	}
	if _, ok := r.Get("documentary"); ok {
		t.Error("file registry should replace, not merge with, defaults")
	}
}
