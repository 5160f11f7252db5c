package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"chatbot-gateway/internal/models"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second

	completionMaxTokens   = 1000
	completionTemperature = 0.7
)

// APIError is a non-2xx answer from the completion API
// 503 is the only retryable status, everything else surfaces immediately
type APIError struct {
	StatusCode int
	Message    string

	// From the Retry-After header on 429 responses, zero otherwise
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	// Bearer API key, required
	APIKey string

	// If not set than default is used
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
	}
}

// Message is one turn sent upstream
// When ImageDataURL is set the content is encoded as multimodal parts
type Message struct {
	Role         string
	Content      string
	ImageDataURL string
}

type Completion struct {
	Reply string
	Usage models.ChatUsage
}

// wire types

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type choice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []choice         `json:"choices"`
	Usage   models.ChatUsage `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete forwards the conversation to the chat completions endpoint.
// Retries 503 with exponential backoff up to the configured attempt count,
// every other failure is returned on first sight.
func (c *Client) Complete(ctx context.Context, msgs []Message) (Completion, error) {
	payload, err := json.Marshal(c.buildRequest(msgs))
	if err != nil {
		return Completion{}, fmt.Errorf("openai: serialize request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)

	var completion Completion
	err = backoff.Retry(func() error {
		completion, err = c.doRequest(ctx, payload)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		return Completion{}, err
	}

	return completion, nil
}

func (c *Client) buildRequest(msgs []Message) chatRequest {
	wire := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ImageDataURL == "" {
			wire = append(wire, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}

		wire = append(wire, wireMessage{
			Role: m.Role,
			Content: []contentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: m.ImageDataURL}},
			},
		})
	}

	return chatRequest{
		Model:       c.model,
		Messages:    wire,
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	}
}

func (c *Client) doRequest(ctx context.Context, payload []byte) (Completion, error) {
	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Completion{}, fmt.Errorf("openai: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("openai: request error: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Completion{}, newAPIError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Completion{}, fmt.Errorf("openai: parse response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return Completion{}, errors.New("openai: no choices in response")
	}

	return Completion{
		Reply: decoded.Choices[0].Message.Content,
		Usage: decoded.Usage,
	}, nil
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded apiErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		apiErr.Message = decoded.Error.Message
	} else {
		apiErr.Message = string(body)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return apiErr
}
