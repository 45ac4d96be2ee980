// Package classify assigns an incident category to report text, preferring a
// remote classifier and falling back to the local keyword classifier.
package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/mscno/safereport/pkg/fallback"
	"github.com/mscno/safereport/pkg/incident"
)

// DefaultTimeout bounds a single remote classification call.
const DefaultTimeout = 10 * time.Second

// Classifier is a fallible category source, typically remote.
type Classifier interface {
	Classify(ctx context.Context, text string) (incident.Category, error)
}

// Gateway always yields a category from the taxonomy.
type Gateway struct {
	primary Classifier
	local   incident.LocalClassifier
	policy  fallback.Policy[incident.Category]
}

// NewGateway wraps primary with the local fallback. A nil primary means no
// remote classifier is configured and the local classifier is used directly.
func NewGateway(primary Classifier, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		primary: primary,
		policy: fallback.Policy[incident.Category]{
			Dependency: "classifier",
			Timeout:    timeout,
			Logger:     logger,
		},
	}
}

// Classify returns the category for text. It never fails.
func (g *Gateway) Classify(ctx context.Context, text string) incident.Category {
	localResult := func() incident.Category { return g.local.Classify(text) }
	if g.primary == nil {
		return localResult()
	}
	return g.policy.Run(ctx, func(ctx context.Context) (incident.Category, error) {
		c, err := g.primary.Classify(ctx, text)
		if err != nil {
			return "", err
		}
		if !c.Valid() {
			return incident.General, nil
		}
		return c, nil
	}, localResult)
}
