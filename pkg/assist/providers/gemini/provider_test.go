package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"moutamayiz/pkg/assist"

	"google.golang.org/genai"
)

func TestNewGeminiProviderConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		cfg              ProviderConfig
		wantErrSubstring string
		wantPoolSize     int
	}{
		{
			name: "valid config",
			cfg: ProviderConfig{
				APIKeys:    []string{"gm-test"},
				BaseURL:    "https://generativelanguage.googleapis.com/",
				APIVersion: "v1beta",
			},
			wantPoolSize: 1,
		},
		{
			name: "pool deduplicates and drops blanks",
			cfg: ProviderConfig{
				APIKeys: []string{"gm-a", "  ", "gm-b", " gm-a "},
			},
			wantPoolSize: 2,
		},
		{
			name: "missing api keys",
			cfg: ProviderConfig{
				APIKeys: []string{"   ", ""},
			},
			wantErrSubstring: "missing api keys",
		},
		{
			name: "invalid base url",
			cfg: ProviderConfig{
				APIKeys: []string{"gm-test"},
				BaseURL: "not a url",
			},
			wantErrSubstring: "parse base_url",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			provider, err := New(testCase.cfg)
			if testCase.wantErrSubstring != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if len(provider.models) != testCase.wantPoolSize {
				t.Fatalf("pool size = %d, want %d", len(provider.models), testCase.wantPoolSize)
			}
		})
	}
}

func TestGeminiGenerateMapsRequest(t *testing.T) {
	t.Parallel()

	fake := &fakeModelsClient{answer: "الجواب"}
	provider := &Provider{
		models: []geminiModelsClient{fake},
		pick:   func(int) int { return 0 },
	}

	answer, err := provider.Generate(context.Background(), assist.Request{
		Model: " gemini-2.5-flash ",
		Messages: []assist.Message{
			{Role: assist.RoleSystem, Content: "أنت مساعد دراسي."},
			{Role: assist.RoleUser, Content: "اشرح الدرس"},
			{Role: assist.RoleAssistant, Content: "تفضل الشرح"},
			{Role: assist.RoleUser, Content: "أكمل"},
		},
		Temperature:     0.4,
		MaxOutputTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer != "الجواب" {
		t.Fatalf("answer = %q", answer)
	}
	if fake.model != "gemini-2.5-flash" {
		t.Fatalf("model = %q", fake.model)
	}
	if len(fake.contents) != 3 {
		t.Fatalf("contents length = %d, want 3", len(fake.contents))
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	for index, content := range fake.contents {
		if content.Role != wantRoles[index] {
			t.Fatalf("contents[%d] role = %q, want %q", index, content.Role, wantRoles[index])
		}
	}
	if fake.config.SystemInstruction == nil || fake.config.SystemInstruction.Parts[0].Text != "أنت مساعد دراسي." {
		t.Fatal("system instruction missing")
	}
	if fake.config.Temperature == nil || *fake.config.Temperature != 0.4 {
		t.Fatalf("temperature = %v", fake.config.Temperature)
	}
	if fake.config.MaxOutputTokens != 1024 {
		t.Fatalf("max output tokens = %d", fake.config.MaxOutputTokens)
	}
}

func TestGeminiGeneratePicksPooledClient(t *testing.T) {
	t.Parallel()

	first := &fakeModelsClient{answer: "a"}
	second := &fakeModelsClient{answer: "b"}
	provider := &Provider{
		models: []geminiModelsClient{first, second},
		pick:   func(int) int { return 1 },
	}

	answer, err := provider.Generate(context.Background(), assist.Request{
		Model:    "gemini-2.5-flash",
		Messages: []assist.Message{{Role: assist.RoleUser, Content: "سؤال"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer != "b" {
		t.Fatalf("answer = %q, want the second pool client's", answer)
	}
	if first.calls != 0 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 0/1", first.calls, second.calls)
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		fake             *fakeModelsClient
		req              assist.Request
		wantErrSubstring string
	}{
		{
			name: "system-only conversation",
			fake: &fakeModelsClient{answer: "x"},
			req: assist.Request{
				Model:    "gemini-2.5-flash",
				Messages: []assist.Message{{Role: assist.RoleSystem, Content: "تعليمات"}},
			},
			wantErrSubstring: "missing non-system messages",
		},
		{
			name: "provider failure",
			fake: &fakeModelsClient{err: errors.New("googleapi: Error 429")},
			req: assist.Request{
				Model:    "gemini-2.5-flash",
				Messages: []assist.Message{{Role: assist.RoleUser, Content: "سؤال"}},
			},
			wantErrSubstring: "429",
		},
		{
			name: "empty answer",
			fake: &fakeModelsClient{answer: "   "},
			req: assist.Request{
				Model:    "gemini-2.5-flash",
				Messages: []assist.Message{{Role: assist.RoleUser, Content: "سؤال"}},
			},
			wantErrSubstring: "empty answer",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			provider := &Provider{
				models: []geminiModelsClient{testCase.fake},
				pick:   func(int) int { return 0 },
			}
			_, err := provider.Generate(context.Background(), testCase.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), testCase.wantErrSubstring) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
			}
		})
	}
}

type fakeModelsClient struct {
	answer string
	err    error

	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModelsClient) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}

	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: f.answer},
					},
				},
			},
		},
	}, nil
}
