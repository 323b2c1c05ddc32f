package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/mx-space/capture/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const (
	defaultMaxOutputTokens    = 1024
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultAnthropicModel     = "claude-haiku-4-5-20251001"
	defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"
)

var errEmptyResponse = errors.New("empty response from AI")

// Completer is a text-structuring capability: a prompt in, raw model text out.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

type providerKind int

const (
	kindOpenAI providerKind = iota
	kindOpenAICompatible
	kindOpenRouter
	kindAnthropic
)

func parseProviderKind(raw string) providerKind {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.NewReplacer("_", "-", " ", "").Replace(t)
	switch t {
	case "anthropic":
		return kindAnthropic
	case "openrouter":
		return kindOpenRouter
	case "openai-compatible", "openaicompatible":
		return kindOpenAICompatible
	}
	return kindOpenAI
}

// NewCompleter picks the provider for assignment (or the first enabled one).
// It returns nil when no provider is enabled, which callers treat as
// "always fall back". A provider that cannot be built yields a Completer
// that always fails.
func NewCompleter(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) Completer {
	provider := selectAIProvider(cfg, assignment)
	if provider == nil {
		return nil
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return failingCompleter{err: fmt.Errorf("AI provider %q has no api key", provider.ID)}
	}
	modelID := strings.TrimSpace(provider.DefaultModel)
	endpoint := strings.TrimSpace(provider.Endpoint)

	switch parseProviderKind(provider.Type) {
	case kindAnthropic:
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		client := anthropicclient.NewClient(opts...)
		return &modelCompleter{
			model:     jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)),
			maxTokens: maxTokens,
			timeout:   cfg.Timeout,
		}
	case kindOpenAICompatible:
		// Compatible servers implement chat completions only.
		return &chatCompleter{
			client:    openaiclient.NewClient(openAIOptions(apiKey, endpoint)...),
			model:     orDefault(modelID, defaultOpenAIModel),
			maxTokens: maxTokens,
			timeout:   cfg.Timeout,
		}
	case kindOpenRouter:
		if endpoint == "" {
			endpoint = defaultOpenRouterEndpoint
		}
	}

	client := openaiclient.NewClient(openAIOptions(apiKey, endpoint)...)
	return &modelCompleter{
		model:     jetopenai.NewLanguageModel(orDefault(modelID, defaultOpenAIModel), jetopenai.WithClient(client)),
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
	}
}

func openAIOptions(apiKey, endpoint string) []openaioption.RequestOption {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if base := normalizeOpenAIBaseURL(endpoint); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	return opts
}

// modelCompleter drives a go.jetify.com/ai language model.
type modelCompleter struct {
	model     jetapi.LanguageModel
	maxTokens int
	timeout   time.Duration
}

func (m *modelCompleter) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})

	resp, err := jetai.GenerateText(ctx, messages,
		jetai.WithModel(m.model),
		jetai.WithMaxOutputTokens(m.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errEmptyResponse
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.(*jetapi.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", errEmptyResponse
	}
	return text.String(), nil
}

// chatCompleter calls /chat/completions through the OpenAI SDK.
type chatCompleter struct {
	client    openaiclient.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func (c *chatCompleter) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openaiclient.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openaiclient.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaiclient.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model:     openaiclient.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openaiclient.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai-compatible: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

type failingCompleter struct{ err error }

func (f failingCompleter) Complete(context.Context, string, string) (string, error) {
	return "", f.err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// unmarshalAIJSON decodes model output, tolerating code fences and prose
// around a single JSON object.
func unmarshalAIJSON(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)
	for _, fence := range []string{"```json", "```JSON", "```"} {
		cleaned = strings.TrimPrefix(cleaned, fence)
	}
	cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))

	if json.Unmarshal([]byte(cleaned), out) == nil {
		return nil
	}
	start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start && json.Unmarshal([]byte(cleaned[start:end+1]), out) == nil {
		return nil
	}
	return errors.New("invalid JSON response from AI")
}

// normalizeOpenAIBaseURL makes sure an http(s) endpoint ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return base
	}
	if !strings.HasSuffix(parsed.Path, "/v1") {
		parsed.Path += "/v1"
	}
	return parsed.String()
}

// truncateRunes returns at most maxLen characters of text.
func truncateRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// selectAIProvider returns a copy of the assigned provider, or of the first
// enabled one when the assignment is empty or names no enabled provider. The
// assignment's model overrides the provider default.
func selectAIProvider(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) *appcfg.AIProvider {
	var wantID, model string
	if assignment != nil {
		wantID = strings.TrimSpace(assignment.ProviderID)
		model = strings.TrimSpace(assignment.Model)
	}

	var chosen *appcfg.AIProvider
	for i := range cfg.Providers {
		p := cfg.Providers[i]
		if !p.Enabled {
			continue
		}
		if chosen == nil {
			chosen = &p
		}
		if wantID != "" && strings.TrimSpace(p.ID) == wantID {
			chosen = &p
			break
		}
	}
	if chosen != nil && model != "" {
		chosen.DefaultModel = model
	}
	return chosen
}
