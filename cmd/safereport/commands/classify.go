package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mscno/safereport/pkg/incident"
)

// ClassifyCmd runs the local keyword classifier, the same one the server
// falls back to when the remote classifier is unavailable.
type ClassifyCmd struct {
	Text   []string `arg:"" help:"Incident description."`
	Scores bool     `help:"Print per-category keyword hits."`
}

func (c *ClassifyCmd) Run(ctx *cliCtx) error {
	text := strings.Join(c.Text, " ")
	var classifier incident.LocalClassifier
	fmt.Println(classifier.Classify(text))
	if !c.Scores {
		return nil
	}
	scores := classifier.Scores(text)
	categories := make([]incident.Category, 0, len(scores))
	for cat := range scores {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		if scores[categories[i]] != scores[categories[j]] {
			return scores[categories[i]] > scores[categories[j]]
		}
		return categories[i] < categories[j]
	})
	for _, cat := range categories {
		fmt.Printf("  %-22s %d\n", cat, scores[cat])
	}
	return nil
}
