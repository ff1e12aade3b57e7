package lunartasks

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

// Client is a minimal Lunar Tasks HTTP API client.
type Client struct {
	BaseURL string
	// BasePath is where the API is mounted on the server; "/api" when empty.
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/api",
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID           string     `json:"id"`
	Identifier   string     `json:"identifier"`
	Title        string     `json:"title"`
	Content      *string    `json:"content"`
	Label        string     `json:"label"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AIPriority   float64    `json:"aiPriority"`
	UserPriority int        `json:"userPriority"`
	Token        string     `json:"token"`
	Active       bool       `json:"active"`
	UserID       string     `json:"userId"`
	DueOfDate    *time.Time `json:"dueOfDate"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewTask is the create payload. Optional fields are omitted when nil.
type NewTask struct {
	Title      string   `json:"title"`
	Content    *string  `json:"content,omitempty"`
	Label      *string  `json:"label,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Priority   *string  `json:"priority,omitempty"`
	AIPriority *float64 `json:"aiPriority,omitempty"`
	UserID     string   `json:"userId"`
}

// TaskUpdate is the update payload. Only non-nil fields are sent.
type TaskUpdate struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      *string    `json:"title,omitempty"`
	Content    *string    `json:"content,omitempty"`
	Label      *string    `json:"label,omitempty"`
	Status     *string    `json:"status,omitempty"`
	Priority   *string    `json:"priority,omitempty"`
	AIPriority *float64   `json:"aiPriority,omitempty"`
	DueOfDate  *time.Time `json:"dueOfDate,omitempty"`
}

// TaskRef identifies a task to delete.
type TaskRef struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	UserID string `json:"userId"`
}

// FieldError is one rejected field reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string       `json:"error"`
	Details    []FieldError `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d message=%s details=%v", e.StatusCode, e.Message, e.Details)
}

// ListTasks returns every task, newest first.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp, err
}

// GetTask fetches a task by identifier (case-insensitive).
func (c *Client) GetTask(ctx context.Context, identifier string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(identifier), nil, &resp)
	return resp, err
}

// CreateTask creates a task; the server assigns its identifier.
func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, in TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks", in, &resp)
	return resp, err
}

// DeleteTask deletes one task and returns it.
func (c *Client) DeleteTask(ctx context.Context, ref TaskRef) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodDelete, "tasks", ref, &resp)
	return resp, err
}

// DeleteTasks deletes every listed task and returns how many were removed.
func (c *Client) DeleteTasks(ctx context.Context, refs []TaskRef) (int64, error) {
	if refs == nil {
		refs = []TaskRef{}
	}
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodDelete, "tasks", refs, &resp)
	return resp.Count, err
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
