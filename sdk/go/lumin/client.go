// Package lumin is a small Go client for the Lumin task assistant REST API.
package lumin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Chat streams wait on a language model, so keep it generous.
const DefaultHTTPTimeout = 90 * time.Second

// DefaultUserHeader is the header the server reads the caller's user ID from.
const DefaultUserHeader = "X-User-ID"

// Client wraps the HTTP interactions with the Lumin REST API on behalf of one user.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userID     int64
	userHeader string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserHeader overrides the identity header name.
func WithUserHeader(header string) Option {
	return func(c *Client) {
		if header != "" {
			c.userHeader = header
		}
	}
}

// Task mirrors the task resource returned by the API.
type Task struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	DataSourceID *int64    `json:"data_source_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewTask is the payload for CreateTask. Empty status and priority use the
// server defaults.
type NewTask struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
	Priority     string `json:"priority,omitempty"`
	DataSourceID *int64 `json:"data_source_id,omitempty"`
}

// TaskUpdate is a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
	Priority     *string `json:"priority,omitempty"`
	DataSourceID *int64  `json:"data_source_id,omitempty"`
}

// DataSource mirrors the data source resource.
type DataSource struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	TableName     string    `json:"table_name,omitempty"`
	ConnectionURL string    `json:"connection_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatEvent is one line of the chat stream.
type ChatEvent struct {
	Status string `json:"status,omitempty"`
	Action string `json:"action,omitempty"`
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// ChatRequest asks the assistant to act on a natural-language question.
type ChatRequest struct {
	Question       string `json:"question"`
	ConversationID int64  `json:"conversation_id"`
	Model          string `json:"llm_model,omitempty"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("lumin api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("lumin api error (%d): %s", e.StatusCode, e.Message)
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// NewClient instantiates a client acting as userID.
func NewClient(rawURL string, userID int64, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		userID:     userID,
		userHeader: DefaultUserHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ListTasks returns the caller's tasks, newest first. limit <= 0 uses the server default.
func (c *Client) ListTasks(ctx context.Context, limit int, statuses ...string) ([]Task, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	endpoint := "/api/v1/tasks"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// CreateTask creates a task directly.
func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var out struct {
		Task Task `json:"task"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/tasks", in, &out); err != nil {
		return Task{}, err
	}
	return out.Task, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var out struct {
		Task Task `json:"task"`
	}
	if err := c.call(ctx, http.MethodGet, taskPath(id), nil, &out); err != nil {
		return Task{}, err
	}
	return out.Task, nil
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id int64, update TaskUpdate) (Task, error) {
	var out struct {
		Task Task `json:"task"`
	}
	if err := c.call(ctx, http.MethodPut, taskPath(id), update, &out); err != nil {
		return Task{}, err
	}
	return out.Task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// ListDataSources returns the caller's data sources.
func (c *Client) ListDataSources(ctx context.Context) ([]DataSource, error) {
	var out struct {
		DataSources []DataSource `json:"datasources"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/datasources", nil, &out); err != nil {
		return nil, err
	}
	return out.DataSources, nil
}

// AddDataSource registers a data source.
func (c *Client) AddDataSource(ctx context.Context, src DataSource) (DataSource, error) {
	body := map[string]string{
		"name":           src.Name,
		"type":           src.Type,
		"table_name":     src.TableName,
		"connection_url": src.ConnectionURL,
	}
	var out struct {
		DataSource DataSource `json:"datasource"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/datasources", body, &out); err != nil {
		return DataSource{}, err
	}
	return out.DataSource, nil
}

// Chat sends a question and calls fn for every streamed event. It returns the
// final answer, or an *APIError when the stream ends with an error event.
func (c *Client) Chat(ctx context.Context, in ChatRequest, fn func(ChatEvent)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/chat/tasks", in)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame struct {
			Data ChatEvent `json:"data"`
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			return "", fmt.Errorf("decode stream line: %w", err)
		}
		if fn != nil {
			fn(frame.Data)
		}
		switch {
		case frame.Data.Answer != "":
			return frame.Data.Answer, nil
		case frame.Data.Status == "error":
			return "", &APIError{StatusCode: resp.StatusCode, Code: frame.Data.Code, Message: frame.Data.Error}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return "", io.ErrUnexpectedEOF
}

func taskPath(id int64) string {
	return "/api/v1/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) call(ctx context.Context, method, endpoint string, payload, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(c.userHeader, strconv.FormatInt(c.userID, 10))
	return req, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	var env struct {
		Message string `json:"message"`
		Data    struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"data"`
	}
	if json.Unmarshal(data, &env) == nil {
		apiErr.Message = env.Message
		apiErr.Code = env.Data.Code
		apiErr.Detail = env.Data.Detail
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
