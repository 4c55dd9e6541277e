package colors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"breedstudio/internal/domain"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultMaxTokens   = 100
	defaultTemperature = 0.3

	openAIDefaultTimeout = 30 * time.Second

	systemMessage = "You are a helpful assistant that provides accurate information about animal breeds and their natural coat colors."
)

var chatModelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
}

var chatModelAliases = map[string]string{
	"gpt-3.5":      "gpt-3.5-turbo",
	"gpt3.5":       "gpt-3.5-turbo",
	"gpt-35-turbo": "gpt-3.5-turbo",
	"gpt4o-mini":   "gpt-4o-mini",
	"gpt4o":        "gpt-4o",
}

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

type OpenAIOptions struct {
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIClient issues chat completions through go-openai. A client is built
// per call because the credential can change between requests.
type OpenAIClient struct {
	model        string
	baseURL      string
	organization string
	httpClient   *http.Client
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	requested := strings.TrimSpace(opts.Model)
	model, reason := normalizeChatModel(requested)
	if reason != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", requested, model))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIClient{
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   client,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", fmt.Errorf("colors: api key is required: %w", domain.ErrInvalidInput)
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.OrgID = c.organization
	cfg.HTTPClient = c.httpClient

	resp, err := openai.NewClientWithConfig(cfg).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("colors: openai status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, domain.ErrProviderFailure)
		}
		return "", fmt.Errorf("colors: openai request: %v: %w", err, domain.ErrProviderFailure)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("colors: no choices returned: %w", domain.ErrProviderFailure)
	}
	return trimCodeFence(resp.Choices[0].Message.Content), nil
}

func normalizeChatModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := chatModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := chatModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return trimmed, "passthrough"
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```text")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Completer = (*OpenAIClient)(nil)
