package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for the failure categories callers care about. Every
// failure out of this package is one of these (wrapped); the engine and
// catalog builder degrade gracefully on any of them.
var (
	ErrMissingCredential = errors.New("generative service credential is missing or a placeholder")
	ErrInvalidCredential = errors.New("generative service rejected the credential")
	ErrRateLimited       = errors.New("generative request budget exhausted, please wait")
	ErrUpstreamThrottled = errors.New("generative service is throttling requests")
	ErrTransient         = errors.New("generative service returned a transient error")
	ErrEmptyCompletion   = errors.New("generative service returned an empty completion")
)

// Message is one chat turn sent to the completion endpoint
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	PresencePenalty  float64   `json:"presence_penalty"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Config holds generative client settings
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client is a thin wrapper around an external chat-completion API. It is
// used by the engine only as a best-effort enrichment source: every
// caller has a local fallback for any error returned here.
type Client struct {
	cfg        Config
	limiter    *RateLimiter
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a generative client guarded by the given limiter
func NewClient(cfg Config, limiter *RateLimiter, opts ...Option) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// credentialUsable reports whether the configured key looks real. Common
// placeholder values from sample env files count as missing.
func credentialUsable(key string) bool {
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, p := range []string{"your-", "your_", "changeme", "placeholder", "xxx"} {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// Complete sends the messages to the completion endpoint and returns the
// first choice's content. The rate limiter is consulted before any
// network activity.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if !credentialUsable(c.cfg.APIKey) {
		return "", ErrMissingCredential
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return "", ErrRateLimited
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", mapStatusError(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrTransient, err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	slog.Debug("generative completion received",
		"model", c.cfg.Model,
		"total_tokens", parsed.Usage.TotalTokens,
	)

	return parsed.Choices[0].Message.Content, nil
}

// mapStatusError converts an upstream error response into one of the
// sentinel categories
func mapStatusError(status int, body []byte) error {
	var parsed chatResponse
	upstream := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		upstream = parsed.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, upstream)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrUpstreamThrottled, upstream)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrTransient, status, upstream)
	default:
		return fmt.Errorf("generative service error: HTTP %d: %s", status, upstream)
	}
}

// GenerateTasks asks for a batch of onboarding tasks in the delimited
// grammar understood by catalog.ParseGeneratedTasks
func (c *Client) GenerateTasks(ctx context.Context, role, level, repository, personality string) (string, error) {
	return c.Complete(ctx, taskBatchPrompt(role, level, repository, personality))
}

// GenerateHint asks for a short hint for the given task
func (c *Client) GenerateHint(ctx context.Context, taskTitle, taskDescription, personality string) (string, error) {
	return c.Complete(ctx, hintPrompt(taskTitle, taskDescription, personality))
}

// EvaluateAnswer asks for a 0-100 score of a free-text answer
func (c *Client) EvaluateAnswer(ctx context.Context, question, expected, answer string) (string, error) {
	return c.Complete(ctx, evaluationPrompt(question, expected, answer))
}

// ClosingFeedback asks for a personalized congratulation once a session
// completes
func (c *Client) ClosingFeedback(ctx context.Context, role string, elapsedMinutes int, struggledWith []string, personality string) (string, error) {
	return c.Complete(ctx, closingPrompt(role, elapsedMinutes, struggledWith, personality))
}
