package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 4096
)

// AnthropicService implements Generator for Anthropic Claude
type AnthropicService struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Generator = (*AnthropicService)(nil)

type AnthropicChatRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	Messages      []chat.ChatMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AnthropicChatResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicService(apiKey string, modelName string, logger *slog.Logger) *AnthropicService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicService{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   anthropicBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the service at a different endpoint.
func (a *AnthropicService) WithBaseURL(url string) *AnthropicService {
	a.baseURL = url
	return a
}

// buildRequest folds system messages and the schema into the system prompt.
// The conversation must open with a user turn.
func (a *AnthropicService) buildRequest(req GenerateRequest) (AnthropicChatRequest, error) {
	systemPrompt, conversation := chat.SplitSystem(req.Messages)

	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return AnthropicChatRequest{}, fmt.Errorf("failed to marshal schema: %w", err)
		}
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += "Respond with only a JSON object that validates against this JSON Schema:\n" + string(schema)
	}

	if len(conversation) == 0 || conversation[0].Role != chat.ChatRoleUser {
		conversation = append([]chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "Begin."}}, conversation...)
	}

	modelName := a.modelName
	if req.Model != "" {
		modelName = req.Model
	}
	temperature := temperatureOr(req.Temperature, DefaultAnthropicTemperature)
	return AnthropicChatRequest{
		Model:       modelName,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: &temperature,
		Messages:    conversation,
		System:      systemPrompt,
	}, nil
}

// Generate makes a messages request to Anthropic.
func (a *AnthropicService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	anthropicReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Slot: -1, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "anthropic", Slot: -1, Status: resp.StatusCode, Message: string(body)}
	}

	var anthropicResp AnthropicChatResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if anthropicResp.Error != nil {
		return nil, &ProviderError{Provider: "anthropic", Slot: -1, Message: anthropicResp.Error.Message}
	}

	var responseText string
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}
	if responseText == "" {
		responseText = msgNoResponse
	}

	a.logger.Debug("Anthropic response received", "model", anthropicReq.Model, "stop_reason", anthropicResp.StopReason)
	return &GenerateResult{
		Text:        responseText,
		TotalTokens: anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		Model:       anthropicReq.Model,
	}, nil
}
