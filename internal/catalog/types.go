package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YearLevel is the academic year a course belongs to.
type YearLevel string

const (
	L1 YearLevel = "L1"
	L2 YearLevel = "L2"
	L3 YearLevel = "L3"
)

// Levels lists every year level in display order.
var Levels = []YearLevel{L1, L2, L3}

// ParseYearLevel accepts the short code ("L1") or the display label ("Licence 1").
func ParseYearLevel(s string) (YearLevel, error) {
	for _, l := range Levels {
		if s == string(l) || s == l.Label() {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown year level %q", s)
}

// Label returns the human-readable name of the level.
func (l YearLevel) Label() string {
	switch l {
	case L1:
		return "Licence 1"
	case L2:
		return "Licence 2"
	case L3:
		return "Licence 3"
	default:
		return string(l)
	}
}

// UnmarshalYAML rejects unknown levels at load time.
func (l *YearLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseYearLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Course is a single lesson of the catalog. It is never mutated after load.
type Course struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Year        YearLevel `yaml:"year" json:"year"`
	Category    string    `yaml:"category" json:"category"`
	Description string    `yaml:"description" json:"description"`
	Content     string    `yaml:"content" json:"content"`
}

type catalogFile struct {
	Courses []Course `yaml:"courses"`
}
