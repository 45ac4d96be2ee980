// Package incident holds the closed incident taxonomy and the offline keyword classifier.
package incident

import (
	"fmt"
	"strings"
)

// Category is one label of the closed incident taxonomy.
type Category string

const (
	Harassment           Category = "harassment"
	DomesticViolence     Category = "domestic_violence"
	SexualViolence       Category = "sexual_violence"
	CyberViolence        Category = "cyber_violence"
	StalkingAndThreats   Category = "stalking_and_threats"
	GenderDiscrimination Category = "gender_discrimination"
	General              Category = "General"
)

// categories is the single ordered definition of the taxonomy.
// The order is also the classifier's tie-break order.
var categories = []Category{
	Harassment,
	DomesticViolence,
	SexualViolence,
	CyberViolence,
	StalkingAndThreats,
	GenderDiscrimination,
	General,
}

// Categories returns every category in taxonomy order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory returns the category named s. Matching is exact apart from
// surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown incident type %q", s)
	}
	return c, nil
}

// OrGeneral returns c when it is a known category and General otherwise.
func OrGeneral(s string) Category {
	c, err := ParseCategory(s)
	if err != nil {
		return General
	}
	return c
}
