// Package client talks to the safereport HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mscno/safereport/server/model"
)

// Client defines the operations exposed by the safereport API.
type Client interface {
	// SubmitReport files an anonymous report. No token is required.
	SubmitReport(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	// FindOrganizations lists verified organizations supporting incidentType.
	FindOrganizations(ctx context.Context, incidentType string) ([]model.OrganizationProfile, error)
	// MatchReport lists the organizations best suited to a consented report.
	MatchReport(ctx context.Context, reportID string) ([]model.OrganizationProfile, error)
	// ListReports returns the organization inbox, optionally filtered by status.
	ListReports(ctx context.Context, status string) ([]model.Report, error)
	GetReport(ctx context.Context, reportID string) (model.Report, error)
	UpdateReportStatus(ctx context.Context, reportID, status string) (model.Report, error)
	GetOwnProfile(ctx context.Context) (model.OrganizationProfile, error)
	PutOwnProfile(ctx context.Context, profile ProfileRequest) (model.OrganizationProfile, error)
	// ListAllOrganizations is admin only.
	ListAllOrganizations(ctx context.Context) ([]model.OrganizationProfile, error)
	// ReviewOrganization is admin only.
	ReviewOrganization(ctx context.Context, organizationID string, review ReviewRequest) (model.OrganizationProfile, error)
}

// Attachment is one evidence file of a submission.
type Attachment struct {
	Name string
	Data []byte
}

// SubmitRequest is a report submission. Attachments are sent as a multipart
// form; without them the request is plain JSON.
type SubmitRequest struct {
	IncidentTitle  string       `json:"incidentTitle"`
	Description    string       `json:"description"`
	OccurredAt     string       `json:"occurredAt"`
	Location       string       `json:"location"`
	ContactPhone   string       `json:"contactPhone,omitempty"`
	UrgencyLevel   string       `json:"urgencyLevel,omitempty"`
	ConsentToShare bool         `json:"consentToShare"`
	Attachments    []Attachment `json:"-"`
}

type SubmitResult struct {
	ReportID     string `json:"reportId"`
	IncidentType string `json:"incidentType"`
	UrgencyLevel string `json:"urgencyLevel"`
	Status       string `json:"status"`
}

type ProfileRequest struct {
	Name                   string   `json:"name"`
	Description            string   `json:"description"`
	Phone                  string   `json:"phone"`
	Address                string   `json:"address"`
	ContactPerson          string   `json:"contactPerson"`
	SupportedIncidentTypes []string `json:"supportedIncidentTypes"`
	Services               []string `json:"services,omitempty"`
}

// ReviewRequest changes the admin-controlled fields of a profile. Nil fields
// are left unchanged.
type ReviewRequest struct {
	Verified *bool    `json:"verified,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
}

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Violations []Violation
}

func (e *APIError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("server error: %d: %s", e.StatusCode, e.Message)
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("server error: %d: %s (%s)", e.StatusCode, e.Message, strings.Join(parts, "; "))
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// APIClient implements Client over HTTP.
type APIClient struct {
	ServerURL  *url.URL
	AuthToken  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ClientConfig holds configuration for creating a new APIClient.
type ClientConfig struct {
	ServerURL string
	AuthToken string
	Logger    *slog.Logger
}

var _ Client = (*APIClient)(nil)

// NewAPIClient creates a new API client instance.
func NewAPIClient(config ClientConfig) (*APIClient, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	serverURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if serverURL.Scheme != "http" && serverURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", config.ServerURL)
	}
	return &APIClient{
		ServerURL:  serverURL,
		AuthToken:  config.AuthToken,
		HTTPClient: &http.Client{},
		Logger:     config.Logger,
	}, nil
}

func (c *APIClient) SubmitReport(ctx context.Context, in SubmitRequest) (SubmitResult, error) {
	var (
		body        io.Reader
		contentType string
	)
	if len(in.Attachments) == 0 {
		b, err := json.Marshal(in)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	} else {
		b, ct, err := multipartSubmission(in)
		if err != nil {
			return SubmitResult{}, err
		}
		body, contentType = b, ct
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/reports", nil, body)
	if err != nil {
		return SubmitResult{}, err
	}
	req.Header.Set("Content-Type", contentType)
	var out SubmitResult
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

func multipartSubmission(in SubmitRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"incidentTitle", in.IncidentTitle},
		{"description", in.Description},
		{"occurredAt", in.OccurredAt},
		{"location", in.Location},
		{"contactPhone", in.ContactPhone},
		{"urgencyLevel", in.UrgencyLevel},
		{"consentToShare", strconv.FormatBool(in.ConsentToShare)},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	for _, a := range in.Attachments {
		fw, err := mw.CreateFormFile("evidence", a.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to add attachment %s: %w", a.Name, err)
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write attachment %s: %w", a.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *APIClient) FindOrganizations(ctx context.Context, incidentType string) ([]model.OrganizationProfile, error) {
	var out []model.OrganizationProfile
	err := c.getJSON(ctx, "/api/v1/organizations", url.Values{"incidentType": {incidentType}}, &out)
	return out, err
}

func (c *APIClient) MatchReport(ctx context.Context, reportID string) ([]model.OrganizationProfile, error) {
	var out []model.OrganizationProfile
	err := c.getJSON(ctx, "/api/v1/reports/"+url.PathEscape(reportID)+"/organizations", nil, &out)
	return out, err
}

func (c *APIClient) ListReports(ctx context.Context, status string) ([]model.Report, error) {
	if c.AuthToken == "" {
		return nil, errors.New("authentication token required for ListReports")
	}
	var query url.Values
	if status != "" {
		query = url.Values{"status": {status}}
	}
	var out []model.Report
	err := c.getJSON(ctx, "/api/v1/reports", query, &out)
	return out, err
}

func (c *APIClient) GetReport(ctx context.Context, reportID string) (model.Report, error) {
	if c.AuthToken == "" {
		return model.Report{}, errors.New("authentication token required for GetReport")
	}
	var out model.Report
	err := c.getJSON(ctx, "/api/v1/reports/"+url.PathEscape(reportID), nil, &out)
	return out, err
}

func (c *APIClient) UpdateReportStatus(ctx context.Context, reportID, status string) (model.Report, error) {
	if c.AuthToken == "" {
		return model.Report{}, errors.New("authentication token required for UpdateReportStatus")
	}
	var out model.Report
	err := c.sendJSON(ctx, http.MethodPatch, "/api/v1/reports/"+url.PathEscape(reportID)+"/status", map[string]string{"status": status}, &out)
	return out, err
}

func (c *APIClient) GetOwnProfile(ctx context.Context) (model.OrganizationProfile, error) {
	if c.AuthToken == "" {
		return model.OrganizationProfile{}, errors.New("authentication token required for GetOwnProfile")
	}
	var out model.OrganizationProfile
	err := c.getJSON(ctx, "/api/v1/organizations/me", nil, &out)
	return out, err
}

func (c *APIClient) PutOwnProfile(ctx context.Context, profile ProfileRequest) (model.OrganizationProfile, error) {
	if c.AuthToken == "" {
		return model.OrganizationProfile{}, errors.New("authentication token required for PutOwnProfile")
	}
	var out model.OrganizationProfile
	err := c.sendJSON(ctx, http.MethodPut, "/api/v1/organizations/me", profile, &out)
	return out, err
}

func (c *APIClient) ListAllOrganizations(ctx context.Context) ([]model.OrganizationProfile, error) {
	if c.AuthToken == "" {
		return nil, errors.New("authentication token required for ListAllOrganizations")
	}
	var out []model.OrganizationProfile
	err := c.getJSON(ctx, "/api/v1/admin/organizations", nil, &out)
	return out, err
}

func (c *APIClient) ReviewOrganization(ctx context.Context, organizationID string, review ReviewRequest) (model.OrganizationProfile, error) {
	if c.AuthToken == "" {
		return model.OrganizationProfile{}, errors.New("authentication token required for ReviewOrganization")
	}
	var out model.OrganizationProfile
	err := c.sendJSON(ctx, http.MethodPatch, "/api/v1/admin/organizations/"+url.PathEscape(organizationID), review, &out)
	return out, err
}

func (c *APIClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

func (c *APIClient) sendJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusOK, out)
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.ServerURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, want int, out any) error {
	c.Logger.Debug("api request", "method", req.Method, "url", req.URL.String())
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Error      string      `json:"error"`
			Violations []Violation `json:"violations"`
		}
		if json.Unmarshal(respBytes, &body) == nil && body.Error != "" {
			apiErr.Message, apiErr.Violations = body.Error, body.Violations
		} else {
			apiErr.Message = strings.TrimSpace(string(respBytes))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
