// ABOUTME: OpenAI collaborator client used by the tutor tools.
// ABOUTME: Sends function-calling requests and returns the call arguments verbatim.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoFunctionCall is returned when the model answers without producing a
// function call.
var ErrNoFunctionCall = errors.New("model returned no function call")

const defaultMaxTokens = 15010

// Config holds configuration for creating a Client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

// Client wraps the OpenAI chat-completions API for single-function calls.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// New creates a collaborator client. BaseURL overrides the API endpoint,
// which tests use to point at a local server.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.With("component", "llm-client"),
	}
}

// FunctionCall sends messages with exactly one function tool attached and
// returns the arguments of the call the model produced.
func (c *Client) FunctionCall(ctx context.Context, fn openai.Tool, messages []openai.ChatCompletionMessage) (json.RawMessage, error) {
	c.logger.Debug("calling collaborator",
		"model", c.model,
		"function", fn.Function.Name)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    []openai.Tool{fn},
		// The client omits a zero temperature from the request body, so use
		// the smallest nonzero value to keep responses deterministic.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	message := resp.Choices[0].Message
	if len(message.ToolCalls) == 0 {
		return nil, ErrNoFunctionCall
	}

	args := message.ToolCalls[0].Function.Arguments
	if !json.Valid([]byte(args)) {
		return nil, fmt.Errorf("function call arguments are not valid JSON")
	}

	c.logger.Debug("collaborator responded",
		"function", fn.Function.Name,
		"argument_bytes", len(args))
	return json.RawMessage(args), nil
}
