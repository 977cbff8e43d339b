// Package llm provides the Anthropic-backed implementation of the LLM
// capability port, with optional AWS Bedrock routing, an advisory
// JSON-schema constraint, semantic-cache short-circuiting, and bounded
// retry with backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/swarmlabs/hive/internal/ports"
)

// Client implements ports.LLM on the Anthropic Messages API.
type Client struct {
	inner          anthropic.Client
	model          anthropic.Model
	retry          Policy
	cache          ports.VectorMemory
	cacheThreshold float64
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use. Empty selects a default.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// Retry overrides the default retry policy when non-zero.
	Retry Policy
	// Cache is an optional semantic cache consulted before calling out.
	Cache ports.VectorMemory
	// CacheThreshold is the minimum score for a cache hit.
	CacheThreshold float64
}

// NewClient creates a new Anthropic-backed LLM port.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultPolicy()
	}

	return &Client{
		inner:          anthropic.NewClient(opts...),
		model:          model,
		retry:          retry,
		cache:          cfg.Cache,
		cacheThreshold: cfg.CacheThreshold,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model { return c.model }

// Invoke sends the conversation to the model and returns its text.
// A non-empty schema is appended to the system prompt as an advisory
// JSON-only constraint; callers validate the result themselves.
func (c *Client) Invoke(ctx context.Context, messages []ports.Message, system, schema string) (string, error) {
	// Semantic cache short-circuit, keyed on the last user turn.
	if c.cache != nil {
		if q := lastUserContent(messages); len(q) > 10 {
			if hit, ok := c.cache.CheckCache(ctx, q, c.cacheThreshold); ok {
				log.Printf("[llm] semantic cache hit (%d chars)", len(hit))
				return hit, nil
			}
		}
	}

	if schema != "" {
		system = system + "\n\nRespond with a single JSON object matching this schema. Output JSON only, no prose:\n" + schema
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 8192,
		Messages:  buildMessages(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return c.retry.Do(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.inner.Messages.New(ctx, params)
		if err != nil {
			return "", classify("llm.invoke", err)
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				sb.WriteString(text.Text)
			}
		}
		out := strings.TrimSpace(sb.String())
		if out == "" {
			return "", &ports.Error{Op: "llm.invoke", Err: errors.New("empty response")}
		}
		return out, nil
	})
}

// buildMessages converts port messages to SDK params. System-role
// messages are folded into user turns; the system prompt proper is
// passed separately.
func buildMessages(messages []ports.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func lastUserContent(messages []ports.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// classify wraps an SDK error as a port error with retry
// classification: rate limits, upstream 5xx, and timeouts retry;
// everything else fails immediately.
func classify(op string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		retryable := apierr.StatusCode == 429 || apierr.StatusCode >= 500
		return &ports.Error{Op: op, Retryable: retryable, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ports.Error{Op: op, Retryable: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ports.Error{Op: op, Retryable: true, Err: err}
	}
	return &ports.Error{Op: op, Err: err}
}
