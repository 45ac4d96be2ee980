package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Config selects and configures the remote storage provider.
type Config struct {
	Bucket          string
	CredentialsFile string
	// PublicBaseURL is prefixed to object keys to build dereferenceable URLs.
	// Defaults to https://storage.googleapis.com/{bucket}.
	PublicBaseURL string
}

var placeholderMarkers = []string{"your_", "your-", "changeme", "change-me", "placeholder", "example", "<", "xxx"}

func isPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// Configured reports whether c names a usable provider. Empty or placeholder
// values select local mode.
func (c Config) Configured() bool {
	if strings.TrimSpace(c.Bucket) == "" || isPlaceholder(c.Bucket) {
		return false
	}
	if c.CredentialsFile != "" && isPlaceholder(c.CredentialsFile) {
		return false
	}
	return true
}

// GCSUploader uploads attachments to a Google Cloud Storage bucket.
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewGCSUploader opens a storage client for config.
func NewGCSUploader(ctx context.Context, config Config, logger *slog.Logger, opts ...option.ClientOption) (*GCSUploader, error) {
	if !config.Configured() {
		return nil, fmt.Errorf("storage bucket not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	baseURL := strings.TrimRight(config.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + config.Bucket
	}
	return &GCSUploader{client: client, bucket: config.Bucket, baseURL: baseURL, logger: logger}, nil
}

// Close closes the underlying storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// ObjectKey returns the object key for obj: {folder}/{millis}_{stem}_{suffix}.
func ObjectKey(obj Object, suffix string) string {
	name := CleanName(obj.Name)
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		stem = "attachment"
	}
	key := fmt.Sprintf("%d_%s", obj.Timestamp.UnixMilli(), stem)
	if suffix != "" {
		key += "_" + suffix
	}
	folder := strings.Trim(obj.Folder, "/")
	if folder == "" {
		return key
	}
	return folder + "/" + key
}

func publicURL(baseURL, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return baseURL + "/" + strings.Join(parts, "/")
}

// Upload writes obj under a fresh key. The write is conditioned on the object
// not existing, so an existing object is never replaced.
func (u *GCSUploader) Upload(ctx context.Context, obj Object) (Locator, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := ObjectKey(obj, uuid.NewString()[:8])
	w := u.client.Bucket(u.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = mimetype.Detect(obj.Data).String()
	w.Metadata = map[string]string{"original_name": obj.Name}

	if _, err := w.Write(obj.Data); err != nil {
		cancel()
		_ = w.Close()
		return Locator{}, fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Locator{}, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	attrs := w.Attrs()
	id := fmt.Sprintf("gs://%s/%s", u.bucket, key)
	if attrs != nil {
		id = fmt.Sprintf("%s#%d", id, attrs.Generation)
	}
	u.logger.DebugContext(ctx, "uploaded object", "bucket", u.bucket, "key", key, "content_type", w.ContentType)
	return Locator{URL: publicURL(u.baseURL, key), ID: id}, nil
}

var _ Uploader = (*GCSUploader)(nil)
