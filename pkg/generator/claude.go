package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kvesta/vulnmap/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a vulnerability management assistant that maps software and hardware " +
	"inventory to NIST CPE 2.3 formatted strings. You only output identifiers in the requested format."

// ClaudeGenerator generates identifiers with the Anthropic Messages API.
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewClaudeGenerator(cfg config.ClaudeConfig) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are bounded here, the scan retries the batch next run
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &ClaudeGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (g *ClaudeGenerator) Generate(ctx context.Context, names []string, kind Kind) (map[string][]string, error) {
	if len(names) == 0 {
		return map[string][]string{}, nil
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(names, kind))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			text.WriteString("\n")
		}
	}

	return ParseResponse(text.String(), names), nil
}
