// Package assist exposes the study-helper text generation contract and the
// registry resolving configured providers by stable profile key.
//
// Providers hide transport details behind one single-shot Generate operation.
// The app asks one question and renders one answer, so there is no streaming
// surface here.
package assist

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies one message role in a multi-turn generation request.
type Role string

const (
	// RoleSystem identifies system-level instructions.
	RoleSystem Role = "system"
	// RoleUser identifies student-authored conversational turns.
	RoleUser Role = "user"
	// RoleAssistant identifies assistant-authored conversational turns.
	RoleAssistant Role = "assistant"
)

// Validate checks whether this role value is supported.
func (r Role) Validate() error {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("validate assist role: unsupported role %q", r)
	}
}

// Message is one ordered message entry in one generation request.
type Message struct {
	Role Role
	// Content is one plain text message body.
	Content string
}

// Validate checks one message contract.
func (m Message) Validate() error {
	if err := m.Role.Validate(); err != nil {
		return fmt.Errorf("validate assist message: %w", err)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("validate assist message: missing content")
	}

	return nil
}

// Request describes one provider generation call.
type Request struct {
	// Model identifies which provider model should be used.
	Model string
	// Messages is the ordered conversation context sent to the provider.
	Messages []Message
	// MaxOutputTokens optionally bounds generated output token count.
	MaxOutputTokens int
	// Temperature optionally controls output randomness.
	Temperature float64
}

// Validate checks one generation request contract.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("validate assist request: missing model")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("validate assist request: missing messages")
	}
	for index, message := range r.Messages {
		if err := message.Validate(); err != nil {
			return fmt.Errorf("validate assist request messages[%d]: %w", index, err)
		}
	}
	if r.MaxOutputTokens < 0 {
		return fmt.Errorf("validate assist request: max_output_tokens must be >= 0")
	}
	if r.Temperature < 0 {
		return fmt.Errorf("validate assist request: temperature must be >= 0")
	}

	return nil
}

// Provider exposes one single-shot text generation operation.
//
// Implementations must be concurrency-safe because generation requests can
// come from multiple UI surfaces at the same time.
type Provider interface {
	// Generate returns the full answer for one request.
	Generate(ctx context.Context, req Request) (string, error)
}
