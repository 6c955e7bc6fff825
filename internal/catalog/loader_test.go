package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/apprend-go/internal/catalog"
)

func TestDefault_LoadsEmbeddedCourses(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}

	course, found := c.Course("l1-hist-litt")
	if !found {
		t.Fatal("Course(l1-hist-litt) not found")
	}
	if course.Year != catalog.L1 {
		t.Errorf("Year = %q, want L1", course.Year)
	}
	if !strings.HasPrefix(course.Content, "# Histoire de la Littérature Française") {
		t.Errorf("Content should start with its title heading, got %q", course.Content[:40])
	}
}

func TestCatalog_ByYear(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	tests := []struct {
		level catalog.YearLevel
		want  int
	}{
		{catalog.L1, 6},
		{catalog.L2, 2},
		{catalog.L3, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			courses := c.ByYear(tt.level)
			if len(courses) != tt.want {
				t.Errorf("ByYear(%s) = %d courses, want %d", tt.level, len(courses), tt.want)
			}
			for _, course := range courses {
				if course.Year != tt.level {
					t.Errorf("course %s has year %s", course.ID, course.Year)
				}
			}
		})
	}
}

func TestCatalog_CourseNotFound(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if _, found := c.Course("NONEXISTENT"); found {
		t.Error("Course(NONEXISTENT) should not be found")
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "duplicate id",
			doc: `
courses:
  - id: a
    year: L1
  - id: a
    year: L2
`,
		},
		{
			name: "unknown year",
			doc: `
courses:
  - id: a
    year: M1
`,
		},
		{
			name: "missing id",
			doc: `
courses:
  - title: "Sans identifiant"
    year: L1
`,
		},
		{
			name: "missing year",
			doc: `
courses:
  - id: a
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := catalog.Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse() should return an error")
			}
		})
	}
}

func TestParse_AcceptsDisplayLabel(t *testing.T) {
	c, err := catalog.Parse([]byte(`
courses:
  - id: a
    year: "Licence 2"
    title: "  Poésie  "
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	course, _ := c.Course("a")
	if course.Year != catalog.L2 {
		t.Errorf("Year = %q, want L2", course.Year)
	}
	if course.Title != "Poésie" {
		t.Errorf("Title = %q, want trimmed title", course.Title)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	os.WriteFile(path, []byte(`
courses:
  - id: l3-custom
    title: "Cours personnalisé"
    year: L3
    category: "Test"
    description: "Un cours chargé depuis le disque."
    content: |
      # Titre
      Un paragraphe.
`), 0o644)

	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if got := c.ByYear(catalog.L3); len(got) != 1 || got[0].ID != "l3-custom" {
		t.Errorf("ByYear(L3) = %+v", got)
	}
	if got := c.Levels(); len(got) != 1 || got[0] != catalog.L3 {
		t.Errorf("Levels() = %v, want [L3]", got)
	}
	if got := c.ByYear(catalog.L1); got == nil || len(got) != 0 {
		t.Errorf("ByYear(L1) = %#v, want empty non-nil slice", got)
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if c.Len() == 0 {
		t.Error("Load(\"\") should return the embedded catalog")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := catalog.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestParseYearLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    catalog.YearLevel
		wantErr bool
	}{
		{"L1", catalog.L1, false},
		{"Licence 3", catalog.L3, false},
		{"l1", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := catalog.ParseYearLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseYearLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseYearLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
