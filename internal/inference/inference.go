// Package inference adapts an OpenAI-compatible chat endpoint to the
// pipeline's regeneration hook. Any server speaking the same API
// (vLLM, llama.cpp, LM Studio) works via OPENAI_BASE_URL.
package inference

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/response-guard/internal/pipeline"
)

// #region config

// Config selects the endpoint and model.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
}

// DefaultConfig reads endpoint settings from the environment.
func DefaultConfig() Config {
	cfg := Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return cfg
}

// #endregion config

// #region client

// chatCompleter is the slice of the OpenAI client the generator needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client generates chat completions for guard retries.
type Client struct {
	api    chatCompleter
	config Config
}

// NewClient builds a client from config. A key is required unless a
// BaseURL points at a local server that ignores auth.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("inference: OPENAI_API_KEY not set and no OPENAI_BASE_URL override")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientConfig), config: config}, nil
}

// NewClientWithAPI wraps an existing completer. Used by tests and by
// callers that manage their own OpenAI client.
func NewClientWithAPI(api chatCompleter, config Config) *Client {
	return &Client{api: api, config: config}
}

// #endregion client

// #region generate

// Generate produces one completion at the given temperature.
func (c *Client) Generate(ctx context.Context, temperature float32, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if c.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// InferenceFunc binds the original prompt into a regeneration hook for
// the pipeline. The retry prompt is appended after the original so the
// model sees both what was asked and what went wrong.
func (c *Client) InferenceFunc(originalPrompt string) pipeline.InferenceFunc {
	return func(ctx context.Context, temperature float32, retryPrompt string) (string, error) {
		prompt := originalPrompt
		if retryPrompt != "" {
			prompt = originalPrompt + "\n\n" + retryPrompt
		}
		return c.Generate(ctx, temperature, prompt)
	}
}

// #endregion generate
