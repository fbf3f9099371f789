package qualgatesdk

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
)

// Client is a minimal Qualgate HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Material represents the API material model (partial).
type Material struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status"`
}

// CheckResult is one evaluated check.
type CheckResult struct {
	Definition struct {
		Key  string `json:"key"`
		Tier string `json:"tier"`
	} `json:"definition"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// CheckSummary is the approval verdict for one material.
type CheckSummary struct {
	IsBlocked             bool `json:"is_blocked"`
	CanConditionalApprove bool `json:"can_conditional_approve"`
	CanFullApprove        bool `json:"can_full_approve"`
	TotalChecks           int  `json:"total_checks"`
	FailedChecks          int  `json:"failed_checks"`
}

// Evaluation bundles check results with their summary.
type Evaluation struct {
	MaterialID string        `json:"material_id"`
	Results    []CheckResult `json:"results"`
	Summary    CheckSummary  `json:"summary"`
}

// WorkItem is one prioritized unit of compliance work.
type WorkItem struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Priority         string `json:"priority"`
	PriorityScore    int    `json:"priority_score"`
	EntityType       string `json:"entity_type"`
	EntityID         string `json:"entity_id"`
	EntityName       string `json:"entity_name"`
	IssueDescription string `json:"issue_description"`
	DueDate          string `json:"due_date,omitempty"`
	DaysUntilDue     *int   `json:"days_until_due,omitempty"`
	IsOverdue        bool   `json:"is_overdue"`
	Category         string `json:"category,omitempty"`
}

// WorkQueueSummary holds aggregate queue counts.
type WorkQueueSummary struct {
	Total              int            `json:"total"`
	Overdue            int            `json:"overdue"`
	DueWithin7Days     int            `json:"due_within_7_days"`
	DueWithinLookahead int            `json:"due_within_lookahead"`
	ByType             map[string]int `json:"by_type"`
	ByPriority         map[string]int `json:"by_priority"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMaterial creates a material.
func (c *Client) CreateMaterial(ctx context.Context, name, code, category string) (Material, error) {
	body := map[string]any{
		"name":     name,
		"code":     code,
		"category": category,
	}
	var resp Material
	err := c.do(ctx, http.MethodPost, "v0/materials", body, &resp)
	return resp, err
}

// Checks runs the compliance checks for a material.
func (c *Client) Checks(ctx context.Context, materialID string) (Evaluation, error) {
	var resp Evaluation
	endpoint := fmt.Sprintf("v0/materials/%s/checks", url.PathEscape(materialID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Approve fully approves a material.
func (c *Client) Approve(ctx context.Context, materialID string) (Material, error) {
	var resp Material
	endpoint := fmt.Sprintf("v0/materials/%s/approve", url.PathEscape(materialID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ConditionalApprove grants a time-bounded approval.
func (c *Client) ConditionalApprove(ctx context.Context, materialID string) (Material, error) {
	var resp Material
	endpoint := fmt.Sprintf("v0/materials/%s/conditional-approve", url.PathEscape(materialID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// WorkQueue returns the prioritized queue, optionally filtered by item type.
func (c *Client) WorkQueue(ctx context.Context, types ...string) ([]WorkItem, error) {
	endpoint := "v0/work-queue"
	if len(types) > 0 {
		params := url.Values{}
		for _, t := range types {
			params.Add("type", t)
		}
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []WorkItem `json:"items"`
		Total int        `json:"total"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// QueueSummary returns aggregate queue counts.
func (c *Client) QueueSummary(ctx context.Context) (WorkQueueSummary, error) {
	var resp WorkQueueSummary
	err := c.do(ctx, http.MethodGet, "v0/work-queue/summary", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
