// Package gemini implements the assist provider over the Google Gemini API
// with a rotating pool of API keys.
package gemini

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"

	"moutamayiz/pkg/assist"

	"google.golang.org/genai"
)

const defaultAPIVersion = "v1beta"

// ProviderConfig configures one Gemini-backed provider instance.
type ProviderConfig struct {
	// APIKeys is the credential pool. Each request uses one key picked at
	// random, spreading per-key quota across the pool.
	APIKeys []string
	// BaseURL optionally overrides the Gemini endpoint.
	BaseURL string
	// APIVersion optionally overrides Gemini API version.
	//
	// Zero defaults to v1beta.
	APIVersion string
}

// Provider is an assist provider backed by Google Gemini.
type Provider struct {
	models []geminiModelsClient
	pick   func(n int) int
}

type geminiModelsClient interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// New builds one Gemini provider instance with one client per pooled key.
func New(cfg ProviderConfig) (*Provider, error) {
	keys, err := normalizeKeys(cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("new gemini provider: %w", err)
	}

	trimmedBaseURL := strings.TrimSpace(cfg.BaseURL)
	if trimmedBaseURL != "" {
		parsed, parseErr := url.Parse(trimmedBaseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("new gemini provider parse base_url: %w", parseErr)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("new gemini provider parse base_url: must include scheme and host")
		}
	}

	trimmedAPIVersion := strings.TrimSpace(cfg.APIVersion)
	if trimmedAPIVersion == "" {
		trimmedAPIVersion = defaultAPIVersion
	}

	models := make([]geminiModelsClient, 0, len(keys))
	for _, key := range keys {
		client, clientErr := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    trimmedBaseURL,
				APIVersion: trimmedAPIVersion,
			},
		})
		if clientErr != nil {
			return nil, fmt.Errorf("new gemini client: %w", clientErr)
		}
		if client == nil || client.Models == nil {
			return nil, fmt.Errorf("new gemini client: models client is nil")
		}
		models = append(models, client.Models)
	}

	return &Provider{
		models: models,
		pick:   rand.IntN,
	}, nil
}

// Generate runs one Gemini request on a randomly picked pool key.
func (p *Provider) Generate(ctx context.Context, req assist.Request) (string, error) {
	if p == nil {
		return "", fmt.Errorf("gemini generate: nil provider")
	}
	if ctx == nil {
		return "", fmt.Errorf("gemini generate: nil context")
	}
	if len(p.models) == 0 {
		return "", fmt.Errorf("gemini generate: empty client pool")
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("gemini generate validate request: %w", err)
	}

	contents, config, err := mapGenerateRequest(req)
	if err != nil {
		return "", fmt.Errorf("gemini generate map request: %w", err)
	}

	models := p.models[p.pick(len(p.models))]
	response, err := models.GenerateContent(ctx, strings.TrimSpace(req.Model), contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if response == nil {
		return "", fmt.Errorf("gemini generate: nil response")
	}

	answer := response.Text()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("gemini generate: empty answer")
	}

	return answer, nil
}

func mapGenerateRequest(req assist.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	systemParts := make([]string, 0, len(req.Messages))
	contents := make([]*genai.Content, 0, len(req.Messages))
	for index, message := range req.Messages {
		switch message.Role {
		case assist.RoleSystem:
			systemParts = append(systemParts, message.Content)
		case assist.RoleUser, assist.RoleAssistant:
			role, err := mapMessageRole(message.Role)
			if err != nil {
				return nil, nil, fmt.Errorf("messages[%d] role: %w", index, err)
			}
			contents = append(contents, &genai.Content{
				Role: role,
				Parts: []*genai.Part{
					{Text: message.Content},
				},
			})
		default:
			return nil, nil, fmt.Errorf("messages[%d] role: unsupported role %q", index, message.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("missing non-system messages")
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: strings.Join(systemParts, "\n\n")},
			},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > math.MaxInt32 {
			return nil, nil, fmt.Errorf("max_output_tokens exceeds int32 range")
		}
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	return contents, config, nil
}

func mapMessageRole(role assist.Role) (string, error) {
	switch role {
	case assist.RoleUser:
		return string(genai.RoleUser), nil
	case assist.RoleAssistant:
		return string(genai.RoleModel), nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

func normalizeKeys(raw []string) ([]string, error) {
	keys := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, key := range raw {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		keys = append(keys, trimmed)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("missing api keys")
	}

	return keys, nil
}

var _ assist.Provider = (*Provider)(nil)
