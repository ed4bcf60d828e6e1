package backendsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cdigit/internal/workflow/models"
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Body)
}

// HTTPClient calls the core backend's workflow endpoints.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   string
}

type HTTPOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithBearerToken authenticates every call.
func WithBearerToken(token string) HTTPOption {
	return func(h *HTTPClient) {
		h.token = token
	}
}

func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type approvalActionBody struct {
	Action   models.ApprovalAction `json:"action"`
	Workflow *models.Workflow      `json:"workflow"`
}

// WorkflowCreated posts the new workflow to {base}/workflows.
func (h *HTTPClient) WorkflowCreated(ctx context.Context, wf *models.Workflow) error {
	return h.post(ctx, h.baseURL+"/workflows", wf)
}

// ApprovalAction posts the action and resulting workflow to
// {base}/workflows/{voucherId}/actions.
func (h *HTTPClient) ApprovalAction(ctx context.Context, action models.ApprovalAction, wf *models.Workflow) error {
	endpoint := h.baseURL + "/workflows/" + url.PathEscape(wf.VoucherID.String()) + "/actions"
	return h.post(ctx, endpoint, approvalActionBody{Action: action, Workflow: wf})
}

func (h *HTTPClient) post(ctx context.Context, endpoint string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode backend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
