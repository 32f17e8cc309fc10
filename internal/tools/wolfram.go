// ABOUTME: WolframAlpha query tool using the LLM API endpoint.
// ABOUTME: Sends single-line English inputs and relays the plaintext answer.

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWolframBaseURL = "https://www.wolframalpha.com/api/v1/llm-api"

// WolframConfig holds configuration for the ask_wolfram tool.
type WolframConfig struct {
	AppID string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string

	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

// NewAskWolframTool returns the ask_wolfram tool. External queries require
// approval.
func NewAskWolframTool(cfg WolframConfig) *Tool {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWolframBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Tool{
		Name:        "ask_wolfram",
		Description: "Query WolframAlpha for mathematical, scientific, or factual data using keyword-optimized, single-line English inputs",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"input": {
					Type:        "string",
					Description: "A math-optimized, single-line English query for WolframAlpha",
				},
			},
			Required:             []string{"input"},
			AdditionalProperties: boolPtr(false),
		},
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			input := strings.TrimSpace(stringArg(args, "input"))
			if input == "" {
				return nil, fmt.Errorf("'input' must not be empty")
			}

			query := url.Values{}
			query.Set("input", input)
			query.Set("appid", cfg.AppID)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+query.Encode(), nil)
			if err != nil {
				return nil, fmt.Errorf("building wolfram request: %w", err)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("querying wolfram: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("reading wolfram response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("wolfram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			return TextResult(string(body)), nil
		},
	}
}
