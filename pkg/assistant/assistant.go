// Package assistant proxies single chat turns to an external conversational
// assistant and answers with a canned reply when it is unavailable.
package assistant

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

	"github.com/mscno/safereport/pkg/fallback"
	"github.com/mscno/safereport/pkg/incident"
)

// DefaultTimeout bounds a single assistant call.
const DefaultTimeout = 15 * time.Second

const maxResponseBytes = 256 << 10

// Message is one prior turn of a conversation kept by the caller.
type Message struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content"`
}

// Request is a single chat turn.
type Request struct {
	Message string    `json:"message" validate:"required"`
	History []Message `json:"history,omitempty" validate:"max=50,dive"`
}

// Reply is the assistant answer. Fallback is set when the canned reply was used.
type Reply struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

// Remote is a fallible assistant backend.
type Remote interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// HTTPRemote posts chat turns to an HTTP assistant endpoint.
type HTTPRemote struct {
	endpoint   *url.URL
	apiKey     string
	httpClient *http.Client
}

func NewHTTPRemote(rawURL, apiKey string) (*HTTPRemote, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid assistant URL: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid assistant URL %q: scheme must be http or https", rawURL)
	}
	return &HTTPRemote{endpoint: endpoint, apiKey: apiKey, httpClient: &http.Client{}}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (r *HTTPRemote) WithHTTPClient(hc *http.Client) *HTTPRemote {
	r.httpClient = hc
	return r
}

func (r *HTTPRemote) Chat(ctx context.Context, chat Request) (string, error) {
	body, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read assistant response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant returned %s: %s", resp.Status, strings.TrimSpace(string(respBytes)))
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("malformed assistant response: %w", err)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", fmt.Errorf("assistant returned an empty reply")
	}
	return out.Reply, nil
}

// Service answers chat turns. It never fails.
type Service struct {
	remote Remote
	local  incident.LocalClassifier
	policy fallback.Policy[Reply]
}

// NewService wraps remote with the canned fallback. A nil remote always
// answers with the canned reply.
func NewService(remote Remote, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		remote: remote,
		policy: fallback.Policy[Reply]{
			Dependency: "assistant",
			Timeout:    timeout,
			Logger:     logger,
		},
	}
}

func (s *Service) Chat(ctx context.Context, req Request) Reply {
	canned := func() Reply { return Reply{Reply: s.CannedReply(req.Message), Fallback: true} }
	if s.remote == nil {
		return canned()
	}
	return s.policy.Run(ctx, func(ctx context.Context) (Reply, error) {
		text, err := s.remote.Chat(ctx, req)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Reply: text}, nil
	}, canned)
}

var cannedByCategory = map[incident.Category]string{
	incident.Harassment:           "Harassment is never your fault. You can file a report here, and attach screenshots or recordings if you have them.",
	incident.DomesticViolence:     "If you are in danger at home right now, contact local emergency services. When it is safe, you can file a report and choose to share it with support organizations.",
	incident.SexualViolence:       "What happened to you is serious and not your fault. Consider seeking medical care, and file a report when you are ready. Organizations can contact you only if you consent.",
	incident.CyberViolence:        "Save screenshots, links and messages before they disappear, then attach them to a report as evidence.",
	incident.StalkingAndThreats:   "If you feel unsafe right now, contact local emergency services. Keep a record of dates, places and messages, and add them to your report.",
	incident.GenderDiscrimination: "Write down what was said or decided, by whom and when. Attach any documents to your report so an organization can advise you.",
}

const cannedGeneral = "Our assistant is unavailable right now. You can still file a report and, if you consent, verified support organizations will be able to reach you."

// CannedReply is the local answer for message.
func (s *Service) CannedReply(message string) string {
	if reply, ok := cannedByCategory[s.local.Classify(message)]; ok {
		return reply
	}
	return cannedGeneral
}
