// Package catalog holds the static course catalog and the course content markup parser.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed courses.yaml
var defaultCatalog []byte

// Catalog is an immutable, ordered set of courses indexed by ID.
type Catalog struct {
	courses []Course
	byID    map[string]int
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a YAML file. An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	c := &Catalog{
		courses: make([]Course, 0, len(f.Courses)),
		byID:    make(map[string]int, len(f.Courses)),
	}
	for i, course := range f.Courses {
		if course.ID == "" {
			return nil, fmt.Errorf("course #%d has no id", i)
		}
		if course.Year == "" {
			return nil, fmt.Errorf("course %s has no year", course.ID)
		}
		if _, dup := c.byID[course.ID]; dup {
			return nil, fmt.Errorf("duplicate course id %q", course.ID)
		}

		course.Title = norm.NFC.String(strings.TrimSpace(course.Title))
		course.Category = norm.NFC.String(strings.TrimSpace(course.Category))
		course.Description = norm.NFC.String(strings.TrimSpace(course.Description))
		course.Content = norm.NFC.String(strings.TrimSpace(course.Content))

		c.byID[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}

	slog.Debug("catalog parsed", "courses", len(c.courses))
	return c, nil
}

// Course returns a course by ID.
func (c *Catalog) Course(id string) (Course, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Course{}, false
	}
	return c.courses[i], true
}

// ByYear returns the courses of a level in catalog order.
func (c *Catalog) ByYear(level YearLevel) []Course {
	out := []Course{}
	for _, course := range c.courses {
		if course.Year == level {
			out = append(out, course)
		}
	}
	return out
}

// All returns every course in catalog order.
func (c *Catalog) All() []Course {
	return append([]Course(nil), c.courses...)
}

// Levels returns the year levels that have at least one course, in display order.
func (c *Catalog) Levels() []YearLevel {
	var out []YearLevel
	for _, l := range Levels {
		if len(c.ByYear(l)) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of courses.
func (c *Catalog) Len() int {
	return len(c.courses)
}
