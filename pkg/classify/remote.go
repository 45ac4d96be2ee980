package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mscno/safereport/pkg/incident"
	"golang.org/x/oauth2/clientcredentials"
)

// maxResponseBytes bounds how much of a classifier response is read.
const maxResponseBytes = 64 << 10

// RemoteConfig holds configuration for a RemoteClassifier.
type RemoteConfig struct {
	URL string

	// Optional OAuth2 client-credentials for services behind a token endpoint.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	Logger *slog.Logger
}

// RemoteClassifier calls an HTTP text-classification service.
//
// Request body: {"text": "..."}; response body: {"category": "..."}.
type RemoteClassifier struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Category *string `json:"category"`
}

// NewRemoteClassifier creates a classifier client for config.URL.
func NewRemoteClassifier(ctx context.Context, config RemoteConfig) (*RemoteClassifier, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	endpoint, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier URL: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid classifier URL %q: scheme must be http or https", config.URL)
	}

	httpClient := &http.Client{}
	if config.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		}
		httpClient = cc.Client(ctx)
	}

	return &RemoteClassifier{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     config.Logger,
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *RemoteClassifier) WithHTTPClient(hc *http.Client) *RemoteClassifier {
	c.httpClient = hc
	return c
}

// Classify asks the remote service for a category. A 2xx response without a
// known category yields incident.General; every other outcome is an error.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) (incident.Category, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read classifier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("classifier returned %s: %s", resp.Status, strings.TrimSpace(string(respBytes)))
	}

	var out classifyResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("malformed classifier response: %w", err)
	}
	c.logger.DebugContext(ctx, "remote classification", "duration", time.Since(start), "category", out.Category)
	if out.Category == nil {
		return incident.General, nil
	}
	return incident.OrGeneral(*out.Category), nil
}

var _ Classifier = (*RemoteClassifier)(nil)
