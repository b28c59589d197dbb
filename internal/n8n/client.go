// Package n8n is the remote client for the n8n public REST API.
package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/linkflow-ai/flowmirror/internal/pkg/circuitbreaker"
)

const (
	APIKeyHeader = "X-N8N-API-KEY"
	apiPrefix    = "/api/v1"

	workflowPageSize = 100
	maxErrorBody     = 4 << 10
)

var (
	ErrMissingBaseURL = errors.New("n8n base url is required")
	ErrMissingAPIKey  = errors.New("n8n api key is required")
	ErrCursorLoop     = errors.New("n8n returned the same cursor twice")
)

// Client is the capability the reconciliation engine needs from a remote
// instance.
type Client interface {
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	ListExecutions(ctx context.Context, params ListExecutionsParams) (*ExecutionPage, error)
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error)
	Ping(ctx context.Context) error
}

// Factory builds a client from a provider's stored credentials.
type Factory func(baseURL, apiKey string) (Client, error)

// Doer is satisfied by *http.Client and *httpclient.PooledClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewFactory(doer Doer) Factory {
	return func(baseURL, apiKey string) (Client, error) {
		return NewHTTPClient(baseURL, apiKey, doer)
	}
}

// APIError is a non-2xx answer from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("n8n api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("n8n api: http %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports a rejected API key.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsTransient reports errors that say the instance is reachable but busy.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsFatal reports errors that make the whole provider unusable: rejected
// credentials, an unreachable host, or an open circuit.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && !urlErr.Timeout()
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsCursorRejected reports a resume cursor the remote no longer accepts.
func IsCursorRejected(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	doer    Doer
}

func NewHTTPClient(baseURL, apiKey string, doer Doer) (*HTTPClient, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &HTTPClient{baseURL: base, apiKey: apiKey, doer: doer}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", ErrMissingBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid n8n base url %q", raw)
	}
	return strings.TrimSuffix(raw, apiPrefix) + apiPrefix, nil
}

// ListWorkflows walks every page of /workflows and returns the full list.
func (c *HTTPClient) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var (
		workflows []Workflow
		cursor    string
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(workflowPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page listEnvelope
		if err := c.getJSON(ctx, "/workflows?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
		for _, raw := range page.Data {
			workflows = append(workflows, decodeWorkflow(raw))
		}

		next := nextCursor(page.NextCursor)
		if next == "" || len(page.Data) == 0 {
			return workflows, nil
		}
		if next == cursor {
			return nil, ErrCursorLoop
		}
		cursor = next
	}
}

// ListExecutions fetches a single page. The cursor is forwarded unchanged.
func (c *HTTPClient) ListExecutions(ctx context.Context, params ListExecutionsParams) (*ExecutionPage, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.WorkflowID != "" {
		q.Set("workflowId", params.WorkflowID)
	}
	if params.IncludeData {
		q.Set("includeData", "true")
	}

	var envelope listEnvelope
	if err := c.getJSON(ctx, "/executions?"+q.Encode(), &envelope); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	page := &ExecutionPage{
		Data:       make([]Execution, 0, len(envelope.Data)),
		NextCursor: nextCursor(envelope.NextCursor),
	}
	for _, raw := range envelope.Data {
		page.Data = append(page.Data, decodeExecution(raw))
	}
	return page, nil
}

func (c *HTTPClient) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/workflows/"+url.PathEscape(id), &raw); err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	wf := decodeWorkflow(raw)
	if wf.Err != nil {
		return nil, wf.Err
	}
	return &wf, nil
}

func (c *HTTPClient) GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error) {
	path := "/executions/" + url.PathEscape(id)
	if includeData {
		path += "?includeData=true"
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	ex := decodeExecution(raw)
	if ex.Err != nil {
		return nil, ex.Err
	}
	return &ex, nil
}

// Ping checks reachability and credentials with the smallest list call.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var page listEnvelope
	return c.getJSON(ctx, "/workflows?limit=1", &page)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response body: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func nextCursor(c *string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(*c)
}
