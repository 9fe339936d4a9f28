// Package openai implements the assist provider over the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"moutamayiz/pkg/assist"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// ProviderConfig configures one OpenAI-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the OpenAI endpoint.
	BaseURL string
	// Organization optionally sets the OpenAI organization header.
	Organization string
	// Project optionally sets the OpenAI project header.
	Project string
	// MaxRetries optionally overrides the SDK retry count.
	//
	// Nil keeps the SDK default behavior.
	MaxRetries *int
}

// Provider is an assist provider backed by OpenAI Chat Completions.
type Provider struct {
	completions openAIChatClient
}

type openAIChatClient interface {
	New(
		ctx context.Context,
		body openai.ChatCompletionNewParams,
		opts ...option.RequestOption,
	) (*openai.ChatCompletion, error)
}

type chatServiceAdapter struct {
	service openai.ChatCompletionService
}

func (a chatServiceAdapter) New(
	ctx context.Context,
	body openai.ChatCompletionNewParams,
	opts ...option.RequestOption,
) (*openai.ChatCompletion, error) {
	return a.service.New(ctx, body, opts...)
}

// New builds one OpenAI Chat Completions provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	normalized, err := normalizeProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new openai provider: %w", err)
	}

	options := make([]option.RequestOption, 0, 5)
	options = append(options, option.WithAPIKey(normalized.APIKey))
	if normalized.BaseURL != "" {
		options = append(options, option.WithBaseURL(normalized.BaseURL))
	}
	if normalized.Organization != "" {
		options = append(options, option.WithOrganization(normalized.Organization))
	}
	if normalized.Project != "" {
		options = append(options, option.WithProject(normalized.Project))
	}
	if normalized.MaxRetries != nil {
		options = append(options, option.WithMaxRetries(*normalized.MaxRetries))
	}

	client := openai.NewClient(options...)

	return &Provider{
		completions: chatServiceAdapter{service: client.Chat.Completions},
	}, nil
}

// Generate runs one OpenAI Chat Completions request.
func (p *Provider) Generate(ctx context.Context, req assist.Request) (string, error) {
	if p == nil {
		return "", fmt.Errorf("openai generate: nil provider")
	}
	if ctx == nil {
		return "", fmt.Errorf("openai generate: nil context")
	}
	if p.completions == nil {
		return "", fmt.Errorf("openai generate: completions client is nil")
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("openai generate validate request: %w", err)
	}

	params, err := mapGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("openai generate map request: %w", err)
	}

	completion, err := p.completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai generate: empty completion")
	}

	answer := completion.Choices[0].Message.Content
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("openai generate: empty answer")
	}

	return answer, nil
}

func mapGenerateRequest(req assist.Request) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for index, message := range req.Messages {
		switch message.Role {
		case assist.RoleSystem:
			messages = append(messages, openai.SystemMessage(message.Content))
		case assist.RoleUser:
			messages = append(messages, openai.UserMessage(message.Content))
		case assist.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(message.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("messages[%d] role: unsupported role %q", index, message.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(strings.TrimSpace(req.Model)),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	return params, nil
}

type normalizedProviderConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Project      string
	MaxRetries   *int
}

func normalizeProviderConfig(cfg ProviderConfig) (normalizedProviderConfig, error) {
	trimmedAPIKey := strings.TrimSpace(cfg.APIKey)
	if trimmedAPIKey == "" {
		return normalizedProviderConfig{}, fmt.Errorf("missing api_key")
	}

	trimmedBaseURL := strings.TrimSpace(cfg.BaseURL)
	if trimmedBaseURL != "" {
		parsed, err := url.Parse(trimmedBaseURL)
		if err != nil {
			return normalizedProviderConfig{}, fmt.Errorf("parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return normalizedProviderConfig{}, fmt.Errorf("parse base_url: must include scheme and host")
		}
	}

	var maxRetries *int
	if cfg.MaxRetries != nil {
		if *cfg.MaxRetries < 0 {
			return normalizedProviderConfig{}, fmt.Errorf("max_retries must be >= 0")
		}
		cloned := *cfg.MaxRetries
		maxRetries = &cloned
	}

	return normalizedProviderConfig{
		APIKey:       trimmedAPIKey,
		BaseURL:      trimmedBaseURL,
		Organization: strings.TrimSpace(cfg.Organization),
		Project:      strings.TrimSpace(cfg.Project),
		MaxRetries:   maxRetries,
	}, nil
}

var _ assist.Provider = (*Provider)(nil)
