package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ErrNoJSON is returned when the model reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model reply")

// ClaudeConfig contains configuration for the Claude extractor.
type ClaudeConfig struct {
	// Model is the Claude model to use. Empty selects a default.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is an optional AWS profile name.
	AWSProfile string
}

// callFunc sends one system + user prompt pair and returns the text reply.
type callFunc func(ctx context.Context, system, user string) (string, error)

// Claude asks an Anthropic model to read parameters out of the request.
type Claude struct {
	call callFunc
}

// NewClaude creates a Claude extractor.
func NewClaude(cfg ClaudeConfig) (*Claude, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
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

	client := anthropic.NewClient(opts...)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeHaiku4_5_20251001
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &Claude{
		call: func(ctx context.Context, system, user string) (string, error) {
			resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     model,
				MaxTokens: 1024,
				System: []anthropic.TextBlockParam{
					{Text: system},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
				},
			})
			if err != nil {
				return "", err
			}
			var out strings.Builder
			for _, block := range resp.Content {
				if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
					out.WriteString(variant.Text)
				}
			}
			return out.String(), nil
		},
	}, nil
}

// translateModelForBedrock converts Anthropic model names to Bedrock
// cross-region inference profiles.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

const systemPrompt = `You extract parameters for cloud operations tasks.
Reply with a single JSON object and nothing else. Only use the keys listed in
the user message. Omit keys the request does not mention. All values are strings.`

// Extract implements Extractor.
func (c *Claude) Extract(ctx context.Context, agentType models.AgentType, request string) (map[string]any, error) {
	keys := allowedKeys[agentType]
	if len(keys) == 0 {
		return map[string]any{}, nil
	}

	user := fmt.Sprintf("Agent: %s\nAllowed keys: %s\nRequest: %s",
		agentType, strings.Join(keys, ", "), request)
	reply, err := c.call(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("claude extract: %w", err)
	}

	params, err := parseObject(reply)
	if err != nil {
		return nil, err
	}

	out := filter(agentType, params)
	for k, v := range out {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			delete(out, k)
			continue
		}
		out[k] = strings.TrimSpace(s)
	}
	return out, nil
}

// parseObject decodes the first {...} span of the reply, tolerating code
// fences and surrounding prose.
func parseObject(reply string) (map[string]any, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &params); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return params, nil
}
