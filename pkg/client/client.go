package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// Client is a Go SDK for the onboard-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new onboard-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnswerResult is the outcome of a free-text answer submission
type AnswerResult struct {
	Evaluation models.Evaluation `json:"evaluation"`
	Completed  bool              `json:"completed"`
	Attempts   int               `json:"attempts"`
}

// ListOptions contains options for listing sessions
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// CreateSession starts a new onboarding session
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.OnboardingSession, error) {
	var session models.OnboardingSession
	if err := c.call(ctx, "POST", "/api/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (c *Client) GetSession(ctx context.Context, id string) (*models.OnboardingSession, error) {
	var session models.OnboardingSession
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s", id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions retrieves sessions
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) ([]*models.OnboardingSession, error) {
	path := "/api/v1/sessions?"
	if opts.Status != "" {
		path += fmt.Sprintf("status=%s&", opts.Status)
	}
	if opts.Limit > 0 {
		path += fmt.Sprintf("limit=%d&", opts.Limit)
	}
	if opts.Offset > 0 {
		path += fmt.Sprintf("offset=%d&", opts.Offset)
	}

	var result struct {
		Sessions []*models.OnboardingSession `json:"sessions"`
		Total    int                         `json:"total"`
	}
	if err := c.call(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// RestartSession discards all progress and starts a fresh session for
// the same user
func (c *Client) RestartSession(ctx context.Context, id string) (*models.OnboardingSession, error) {
	var session models.OnboardingSession
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/restart", id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session and its cached snapshot
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/api/v1/sessions/%s", id), nil, nil)
}

// GetProgress retrieves catalog completion for a session
func (c *Client) GetProgress(ctx context.Context, id string) (*models.Progress, error) {
	var progress models.Progress
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s/progress", id), nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ReportCommand reports a terminal command run
func (c *Client) ReportCommand(ctx context.Context, id string, req models.CommandResultRequest) (*models.CommandResultResponse, error) {
	var result models.CommandResultResponse
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/commands", id), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartTask moves a task to in-progress
func (c *Client) StartTask(ctx context.Context, sessionID, taskID string) (*models.Task, error) {
	var task models.Task
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/start", sessionID, taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SubmitQuizAnswer submits a selected quiz option
func (c *Client) SubmitQuizAnswer(ctx context.Context, sessionID, taskID string, selected int) (*models.QuizAnswerResponse, error) {
	var result models.QuizAnswerResponse
	req := models.QuizAnswerRequest{SelectedOption: selected}
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/quiz", sessionID, taskID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitAnswer submits a free-text answer for evaluation
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, taskID, answer string) (*AnswerResult, error) {
	var result AnswerResult
	req := models.FreeTextAnswerRequest{Answer: answer}
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/answer", sessionID, taskID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteTask marks a task completed
func (c *Client) CompleteTask(ctx context.Context, sessionID, taskID string) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/complete", sessionID, taskID), nil, nil)
}

// SkipTask marks a task skipped
func (c *Client) SkipTask(ctx context.Context, sessionID, taskID string) error {
	return c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/skip", sessionID, taskID), nil, nil)
}

// GetHint fetches a hint for a task
func (c *Client) GetHint(ctx context.Context, sessionID, taskID string) (string, error) {
	var result struct {
		TaskID string `json:"task_id"`
		Hint   string `json:"hint"`
	}
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s/tasks/%s/hint", sessionID, taskID), nil, &result); err != nil {
		return "", err
	}
	return result.Hint, nil
}

// ListTracks retrieves the known track names
func (c *Client) ListTracks(ctx context.Context) ([]string, error) {
	var result struct {
		Tracks []string `json:"tracks"`
		Total  int      `json:"total"`
	}
	if err := c.call(ctx, "GET", "/api/v1/tracks", nil, &result); err != nil {
		return nil, err
	}
	return result.Tracks, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("API error: %s - %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("API error: request failed")
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
