// Package upload stores evidence attachments in remote object storage and
// degrades to locally scoped locators when the provider is unavailable.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mscno/safereport/pkg/fallback"
)

// DefaultTimeout bounds a single remote upload.
const DefaultTimeout = 30 * time.Second

// LocalScheme prefixes locators synthesized without a remote provider.
const LocalScheme = "local://"

// Locator references a stored attachment regardless of which backend holds it.
type Locator struct {
	URL string `json:"url" bson:"url" datastore:"url,noindex"`
	ID  string `json:"id" bson:"id" datastore:"id,noindex"`
}

// IsLocal reports whether l was synthesized by the local fallback.
func (l Locator) IsLocal() bool {
	return strings.HasPrefix(l.URL, LocalScheme)
}

// Object is a single attachment handed to an Uploader.
type Object struct {
	Data      []byte
	Name      string
	Folder    string
	Timestamp time.Time
}

// Uploader is a fallible remote storage provider.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (Locator, error)
}

// LocalLocator builds the fallback locator for name at ts. The URL depends on
// ts and name only; the ID carries a random suffix so same-name files stored
// in the same millisecond stay distinct.
func LocalLocator(ts time.Time, name string) Locator {
	stamped := fmt.Sprintf("%d-%s", ts.UnixMilli(), CleanName(name))
	return Locator{
		URL: LocalScheme + "uploads/" + stamped,
		ID:  "local/" + stamped + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
}

// CleanName reduces an uploaded file name to its base name.
func CleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == "" {
		return "attachment"
	}
	return base
}

// Gateway stores attachments and always returns a usable locator.
type Gateway struct {
	uploader Uploader
	policy   fallback.Policy[Locator]
	logger   *slog.Logger
	now      func() time.Time
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithClock overrides the gateway time source.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.now = now
	}
}

// NewGateway wraps uploader with the local fallback. A nil uploader selects
// local mode, in which every Store call returns a local locator.
func NewGateway(uploader Uploader, timeout time.Duration, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := &Gateway{
		uploader: uploader,
		logger:   logger,
		now:      time.Now,
		policy: fallback.Policy[Locator]{
			Dependency: "object-storage",
			Timeout:    timeout,
			Logger:     logger,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if uploader == nil {
		logger.Info("object storage not configured, attachments get local locators")
	}
	return g
}

// Store uploads data and returns its locator. It never fails.
func (g *Gateway) Store(ctx context.Context, data []byte, originalName, folder string) Locator {
	obj := Object{
		Data:      data,
		Name:      CleanName(originalName),
		Folder:    folder,
		Timestamp: g.now(),
	}
	local := func() Locator { return LocalLocator(obj.Timestamp, obj.Name) }
	if g.uploader == nil {
		return local()
	}

	loc := g.policy.Run(ctx, func(ctx context.Context) (Locator, error) {
		loc, err := g.uploader.Upload(ctx, obj)
		if err != nil {
			return Locator{}, err
		}
		if loc.URL == "" {
			return Locator{}, fmt.Errorf("provider returned an empty locator for %s", obj.Name)
		}
		return loc, nil
	}, local)
	g.logger.DebugContext(ctx, "stored attachment", "name", obj.Name, "bytes", len(data), "remote", !loc.IsLocal())
	return loc
}
