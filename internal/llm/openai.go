package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

const systemPrompt = "You are a MySQL physical data modelling assistant. " +
	"Answer with a single JSON object and nothing else."

// OpenAIConfig configures the OpenAI-compatible client
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty uses the public endpoint
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  uint64 // retries on rate limits and server errors
	RetryDelay  time.Duration
}

// OpenAI is a Prompter backed by an OpenAI-compatible chat completion API
// in JSON response mode.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI creates a client. The returned value is safe for concurrent use.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// PromptJSON sends the prompt and parses the first choice as a JSON object
func (o *OpenAI) PromptJSON(ctx context.Context, prompt string) (map[string]any, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var resp openai.ChatCompletionResponse
	backoff := retry.WithMaxRetries(o.cfg.MaxRetries, retry.NewExponential(o.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = o.client.CreateChatCompletion(ctx, req)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	return ParseObject(resp.Choices[0].Message.Content)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
